package document

import "errors"

// ErrConversion marks a document that could not be opened or rendered.
var ErrConversion = errors.New("document conversion failed")
