package classifier

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"Нарисуй кота в сапогах", IntentImage},
		{"НАРИСУЙ закат", IntentImage},
		{"сгенерируй картинку с драконом", IntentImage},
		{"draw me a robot", IntentImage},
		{"please generate an image of a city", IntentImage},
		{"Как нарисовать сову?", IntentChat},
		{"привет, как дела?", IntentChat},
		{"what is the capital of France", IntentChat},
		{"", IntentChat},
	}
	for _, tt := range tests {
		if got := Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
