// Package classifier maps free text to an intent when a chat runs in
// automatic routing mode. It is a pure membership test so routing stays
// deterministic and independently testable.
package classifier

import "strings"

// Intent is the routed capability for a free-text message.
type Intent int

const (
	IntentChat Intent = iota
	IntentImage
)

// Trigger phrases for image generation, matched case-insensitively as
// substrings. Anything else is a chat turn.
var imageTriggers = []string{
	"нарисуй",
	"сгенерируй картинку",
	"сгенерируй изображение",
	"создай картинку",
	"создай изображение",
	"draw me",
	"draw a picture",
	"draw an image",
	"generate an image",
	"generate a picture",
	"make an image",
	"make a picture",
	"create an image",
}

// Classify routes text to chat or image generation. Default is chat.
func Classify(text string) Intent {
	lowered := strings.ToLower(text)
	for _, trigger := range imageTriggers {
		if strings.Contains(lowered, trigger) {
			return IntentImage
		}
	}
	return IntentChat
}
