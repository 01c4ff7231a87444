package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/eclore/eclore/internal/catalog"
	"github.com/eclore/eclore/internal/models"
	"github.com/eclore/eclore/internal/services"
)

const defaultModel = "gemini-2.5-flash"

// GeminiClient implements services.ReplyGenerator over the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	catalog   *catalog.Catalog
	modelName string
}

// NewGeminiClient builds a client from an API key. An empty model name
// selects the default flash model.
func NewGeminiClient(ctx context.Context, apiKey, modelName string, cat *catalog.Catalog) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	if modelName == "" {
		modelName = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: client, catalog: cat, modelName: modelName}, nil
}

// Generate sends the conversation and the per-user context and returns the
// reply text.
func (g *GeminiClient) Generate(ctx context.Context, turns []services.ReplyTurn, rc services.ReplyContext) (string, error) {
	var contents []*genai.Content
	for _, t := range turns {
		role := genai.RoleUser
		if t.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, genai.Role(role)))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("no conversation turns to send")
	}

	temp := float32(0.7)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(g.catalog, rc), genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   500,
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text")
	}
	return text, nil
}
