package event

import "errors"

var (
	// ErrMalformedPayload indicates the webhook body is missing required
	// fields. Distinct from downstream failures: nothing external has been
	// called yet when this is reported.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrNoMessages indicates a well-formed delivery that carries no user
	// message (e.g. a status update). Not an error condition for the caller.
	ErrNoMessages = errors.New("webhook delivery contains no messages")
)
