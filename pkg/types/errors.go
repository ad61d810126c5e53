package types

import "errors"

// Failure categories for an extraction request. Callers wrap these with
// fmt.Errorf("%w: ...") and classify with errors.Is.
var (
	ErrInput     = errors.New("invalid image reference")
	ErrNotFound  = errors.New("local image not found")
	ErrFetch     = errors.New("failed to fetch image")
	ErrDecode    = errors.New("failed to decode image")
	ErrInference = errors.New("inference failed")
)
