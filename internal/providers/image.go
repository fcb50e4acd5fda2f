package providers

import "context"

// ImageOptions are the per-request knobs of an image generation call.
type ImageOptions struct {
	Model   string // dall-e-2, dall-e-3
	Size    string // e.g. 256x256, 1024x1024
	Quality string // dall-e-3 only: standard, hd
	APIKey  string // per-call override
}

// ImageCreator turns a text prompt into the URL of a generated image.
type ImageCreator interface {
	CreateImage(ctx context.Context, prompt string, opts ImageOptions) (string, error)
}

// MessageImageFailed is the user-facing text for a failed image generation.
const MessageImageFailed = "图片生成失败"

// ImageError is an image generation failure carrying the text shown to the user.
type ImageError struct {
	Message string
	Err     error
}

func (e *ImageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

func imageFailed(err error) *ImageError {
	return &ImageError{Message: MessageImageFailed, Err: err}
}
