package whatsapp

import "errors"

var (
	// ErrSendFailed indicates the outbound message call was rejected or
	// unreachable.
	ErrSendFailed = errors.New("whatsapp send failed")
	// ErrMediaFetch covers both steps of media retrieval: resolving the
	// media id and downloading the content. Callers do not distinguish
	// which step broke.
	ErrMediaFetch = errors.New("whatsapp media fetch failed")
	// ErrMediaTooLarge indicates the download exceeds the configured cap.
	ErrMediaTooLarge = errors.New("whatsapp media too large")
)
