package client

import "context"

// VisionClient sends one prompt plus a base64 encoded image to a vision
// model backend and returns the generated text.
type VisionClient interface {
	Query(ctx context.Context, prompt, imgB64 string) (string, error)
}
