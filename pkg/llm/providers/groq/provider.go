// Package groq provides vision and transcription via the Groq
// OpenAI-compatible API
package groq

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wiralab/wira/pkg/llm"
)

// Provider implements llm.VisionProvider and llm.Transcriber
type Provider struct {
	client      *openai.Client
	visionModel string
	voiceModel  string
	language    string
}

// Config for the Groq provider
type Config struct {
	APIKey      string
	BaseURL     string
	VisionModel string
	VoiceModel  string
	Language    string // transcription language hint
}

// New creates a Groq-backed provider
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq api key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client:      openai.NewClientWithConfig(clientCfg),
		visionModel: cfg.VisionModel,
		voiceModel:  cfg.VoiceModel,
		language:    cfg.Language,
	}, nil
}

func (p *Provider) Name() string { return "groq" }

// Describe implements llm.VisionProvider
func (p *Provider) Describe(ctx context.Context, prompt string, media llm.Media) (string, error) {
	if len(media.Data) == 0 {
		return "", fmt.Errorf("no media data")
	}
	if prompt == "" {
		prompt = "Describe this image."
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", media.MimeType, base64.StdEncoding.EncodeToString(media.Data))

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.visionModel,
		MaxTokens:   512,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Describe the image concisely and factually.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("groq vision: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcribe implements llm.Transcriber
func (p *Provider) Transcribe(ctx context.Context, media llm.Media) (string, error) {
	if len(media.Data) == 0 {
		return "", fmt.Errorf("no media data")
	}
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       p.voiceModel,
		FilePath:    "voice." + guessExtension(media.MimeType),
		Reader:      bytes.NewReader(media.Data),
		Language:    p.language,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("groq transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func guessExtension(mimeType string) string {
	clean := strings.ToLower(strings.SplitN(mimeType, ";", 2)[0])
	switch {
	case strings.HasSuffix(clean, "ogg"), strings.Contains(clean, "opus"):
		return "ogg"
	case strings.Contains(clean, "mpeg"):
		return "mp3"
	case strings.Contains(clean, "mp4"):
		return "mp4"
	case strings.Contains(clean, "wav"):
		return "wav"
	case strings.Contains(clean, "webm"):
		return "webm"
	}
	return "tmp"
}
