// Package provider defines the generation-provider boundary. Provider
// SDK shapes never cross it: results are plain strings, byte slices, or
// the Image sum type.
package provider

import "context"

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is the image-generation output. Exactly one of URL or Bytes is
// set, decided at the provider boundary.
type Image struct {
	URL   string
	Bytes []byte
	Mime  string
}

// Inline reports whether the image arrived as inline bytes rather than a
// remote URL.
func (i Image) Inline() bool {
	return len(i.Bytes) > 0
}

type ChatProvider interface {
	Complete(ctx context.Context, model, system string, messages []Message) (string, error)
}

type VisionProvider interface {
	Describe(ctx context.Context, model, prompt, imageURL string) (string, error)
}

type ImageProvider interface {
	Generate(ctx context.Context, model, prompt, size string) (Image, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, model string, audio []byte) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, model, text, voice string) ([]byte, error)
}
