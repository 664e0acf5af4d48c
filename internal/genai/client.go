// Package genai wraps the Gemini SDK behind small interfaces so the
// memory and chat services can be tested without a live API key.
package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	apperrors "github.com/luminachat/server-go/internal/errors"
)

// Embedder produces a vector for a piece of text using the given model.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Summarizer condenses a transcript into a short third-person summary.
type Summarizer interface {
	Summarize(ctx context.Context, model, prompt string) (string, error)
}

// Turn is a single prior message handed to the chat model.
type Turn struct {
	Role string
	Text string
}

// ChatStreamer runs a chat completion, invoking onDelta for each text
// fragment as it arrives and returning the assembled response.
type ChatStreamer interface {
	StreamChat(ctx context.Context, model, systemInstruction string, history []Turn, message string, onDelta func(delta string) error) (string, error)
}

// ImageGenerator renders an image and returns it as a data URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, model, prompt string) (string, error)
}

type Client struct {
	client *genai.Client
}

func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	em := c.client.EmbeddingModel(model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, apperrors.Provider("embed", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, apperrors.Provider("embed", fmt.Errorf("empty embedding response"))
	}
	return res.Embedding.Values, nil
}

func (c *Client) Summarize(ctx context.Context, model, prompt string) (string, error) {
	gm := c.client.GenerativeModel(model)
	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", apperrors.Provider("summarize", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

func (c *Client) StreamChat(ctx context.Context, model, systemInstruction string, history []Turn, message string, onDelta func(delta string) error) (string, error) {
	gm := c.client.GenerativeModel(model)
	if systemInstruction != "" {
		gm.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemInstruction)},
		}
	}

	session := gm.StartChat()
	for _, turn := range history {
		role := turn.Role
		if role == "assistant" {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}

	iter := session.SendMessageStream(ctx, genai.Text(message))

	var full strings.Builder
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return full.String(), apperrors.Provider("chat", err)
		}
		delta := responseText(resp)
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
	}

	return full.String(), nil
}

// GenerateImage asks an image-capable model for a single rendering and
// returns it as a base64 data URL, which is what clients embed directly.
func (c *Client) GenerateImage(ctx context.Context, model, prompt string) (string, error) {
	gm := c.client.GenerativeModel(model)
	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", apperrors.Provider("image", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
				return fmt.Sprintf("data:%s;base64,%s", blob.MIMEType, base64.StdEncoding.EncodeToString(blob.Data)), nil
			}
		}
	}

	return "", apperrors.Provider("image", fmt.Errorf("no image data in response"))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	return sb.String()
}
