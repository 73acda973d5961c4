package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAI talks to any OpenAI-compatible endpoint (the default deployment
// points at Groq) and implements every capability interface. The model
// identifier is the only thing that varies between fallback candidates,
// so one client serves them all.
type OpenAI struct {
	client  *openai.Client
	timeout time.Duration
}

func NewOpenAI(apiKey, baseURL string, timeout time.Duration) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		timeout: timeout,
	}
}

func (p *OpenAI) Complete(ctx context.Context, model, system string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.5,
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAI) Describe(ctx context.Context, model, prompt, imageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision completion: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *OpenAI) Generate(ctx context.Context, model, prompt, size string) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Model:  model,
		Prompt: prompt,
		Size:   size,
		N:      1,
	})
	if err != nil {
		return Image{}, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		return Image{}, fmt.Errorf("image generation: empty response")
	}

	data := resp.Data[0]
	switch {
	case data.B64JSON != "":
		raw, err := base64.StdEncoding.DecodeString(data.B64JSON)
		if err != nil {
			return Image{}, fmt.Errorf("decode inline image: %w", err)
		}
		return Image{Bytes: raw, Mime: "image/png"}, nil
	case data.URL != "":
		return Image{URL: data.URL}, nil
	default:
		return Image{}, fmt.Errorf("image generation: no url or inline payload")
	}
}

func (p *OpenAI) Transcribe(ctx context.Context, model string, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		Reader:   bytes.NewReader(audio),
		FilePath: "voice.ogg",
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (p *OpenAI) Synthesize(ctx context.Context, model, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(model),
		Input: text,
		Voice: openai.SpeechVoice(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech payload: %w", err)
	}
	return audio, nil
}
