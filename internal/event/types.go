package event

// Type classifies an inbound message payload.
type Type string

const (
	TypeText        Type = "text"
	TypeImage       Type = "image"
	TypeAudio       Type = "audio"
	TypeDocument    Type = "document"
	TypeUnsupported Type = "unsupported"
)

// String returns the type tag as sent by the platform.
func (t Type) String() string { return string(t) }

// IsMedia reports whether the payload carries a media reference.
func (t Type) IsMedia() bool {
	switch t {
	case TypeImage, TypeAudio, TypeDocument:
		return true
	default:
		return false
	}
}

// MediaRef is the platform's opaque handle for uploaded media. The raw bytes
// are retrieved through a separate resolve-then-fetch exchange.
type MediaRef struct {
	ID       string
	MimeType string
}

// Message is one inbound webhook message, immutable once parsed.
// Exactly one of Body or Media is populated depending on Type.
type Message struct {
	Type      Type
	From      string
	MessageID string
	Body      string
	Media     MediaRef
}
