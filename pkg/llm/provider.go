// Package llm provides the generation capability abstraction
package llm

import "context"

// Media is a decoded inbound media payload
type Media struct {
	MimeType string
	Data     []byte
}

// GenerateOptions tune a single generation call
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
}

// TextProvider turns a fully assembled prompt into prose
type TextProvider interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// VisionProvider produces a textual description of an image
type VisionProvider interface {
	Describe(ctx context.Context, prompt string, media Media) (string, error)
}

// Transcriber converts a voice note into text
type Transcriber interface {
	Transcribe(ctx context.Context, media Media) (string, error)
}
