package collaborators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"property-ingest/models"
	"property-ingest/utils"
)

// maxPromptChars bounds how much page content is sent to the model.
const maxPromptChars = 24000

const extractPrompt = `You extract real-estate listings from web page content.
Reply with a JSON array only. Each element is an object with these string fields
(omit or leave empty when unknown): title, description, source_url, images (array of URLs),
property_type, transaction_type, furnishing, tenancy_terms, price, area, bedrooms, bathrooms,
location, city, county, neighborhood, permit_number, license_number, registration_number,
reference_id, agent_name, agent_phone, agent_email.
Keep price, area and room counts exactly as written on the page.`

const enhancePrompt = `You rewrite real-estate listing copy. Keep every fact, invent nothing.
Reply with a JSON object only: {"title": "...", "description": "..."}.
The title is at most 90 characters.`

// OpenAIConfig selects the model endpoint.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func newOpenAIClient(cfg OpenAIConfig) openai.Client {
	opts := []option.RequestOption{option.WithMaxRetries(1)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return openai.NewClient(opts...)
}

func complete(ctx context.Context, client *openai.Client, model, system, user string) (string, error) {
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIExtractor asks a chat model to turn page content into candidates.
type OpenAIExtractor struct {
	client openai.Client
	model  string
	logger *utils.Logger
}

func NewOpenAIExtractor(cfg OpenAIConfig, logger *utils.Logger) *OpenAIExtractor {
	return &OpenAIExtractor{client: newOpenAIClient(cfg), model: cfg.Model, logger: logger}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, content, sourceURL string) []*models.RawListing {
	page := normalizeText(content)
	if len(page) > maxPromptChars {
		page = strings.ToValidUTF8(page[:maxPromptChars], "")
	}
	user := page
	if sourceURL != "" {
		user = "Page URL: " + sourceURL + "\n\n" + page
	}

	reply, err := complete(ctx, &e.client, e.model, extractPrompt, user)
	if err != nil {
		e.logger.Warn("[openai] Extraction request failed: %v", err)
		return []*models.RawListing{}
	}
	listings, err := decodeListings(reply)
	if err != nil {
		e.logger.Warn("[openai] Extraction reply unreadable: %v", err)
		return []*models.RawListing{}
	}
	e.logger.Debug("[openai] Extracted %d candidate(s)", len(listings))
	return listings
}

// OpenAIEnhancer rewrites listing titles and descriptions with a chat model.
type OpenAIEnhancer struct {
	client openai.Client
	model  string
	logger *utils.Logger
}

func NewOpenAIEnhancer(cfg OpenAIConfig, logger *utils.Logger) *OpenAIEnhancer {
	return &OpenAIEnhancer{client: newOpenAIClient(cfg), model: cfg.Model, logger: logger}
}

func (e *OpenAIEnhancer) Enhance(ctx context.Context, title, description string) (string, string, error) {
	input, err := json.Marshal(map[string]string{"title": title, "description": description})
	if err != nil {
		return "", "", err
	}
	reply, err := complete(ctx, &e.client, e.model, enhancePrompt, string(input))
	if err != nil {
		return "", "", fmt.Errorf("openai: enhance: %w", err)
	}

	var out struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &out); err != nil {
		return "", "", fmt.Errorf("openai: enhance: unreadable reply: %w", err)
	}
	if strings.TrimSpace(out.Title) == "" && strings.TrimSpace(out.Description) == "" {
		return "", "", errors.New("openai: enhance: empty reply")
	}
	return strings.TrimSpace(out.Title), strings.TrimSpace(out.Description), nil
}
