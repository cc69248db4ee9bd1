package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"hush/internal/config"
	"hush/pkg/models"
)

const (
	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "gemini-embedding-001"
	embeddingTaskType     = "SEMANTIC_SIMILARITY"
)

const systemPrompt = `You decide whether a user notification should be delivered.
Answer SEND_NOW when the user benefits from seeing it immediately, DEFER when it
can wait for a quieter moment, and SUPPRESS when it is noise the user does not
need. Set confidence between 0 and 1.`

// GenAIClassifier uses Gemini for both classification and embeddings.
type GenAIClassifier struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGenAIClassifier(ctx context.Context, cfg config.GenAIConfig) (*GenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	c := &GenAIClassifier{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultEmbeddingModel
	}
	return c, nil
}

var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"verdict": {
			Type: genai.TypeString,
			Enum: []string{string(models.VerdictSendNow), string(models.VerdictDefer), string(models.VerdictSuppress)},
		},
		"confidence": {
			Type: genai.TypeNumber,
		},
	},
	Required: []string{"verdict", "confidence"},
}

type verdictResponse struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
}

func (c *GenAIClassifier) Classify(ctx context.Context, event *models.NotificationEvent, ec models.EvaluationContext) (models.ClassifierResult, error) {
	prompt, err := describe(event, ec)
	if err != nil {
		return models.ClassifierResult{}, err
	}

	temperature := float32(0)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temperature,
		ResponseMIMEType:  "application/json",
		ResponseSchema:    verdictSchema,
	})
	if err != nil {
		return models.ClassifierResult{}, fmt.Errorf("GenAI classify failed: %w", err)
	}

	return parseVerdict(resp.Text())
}

func parseVerdict(text string) (models.ClassifierResult, error) {
	var out verdictResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return models.ClassifierResult{}, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	verdict, ok := models.ParseVerdict(strings.ToUpper(out.Verdict))
	if !ok {
		return models.ClassifierResult{}, fmt.Errorf("classifier returned unknown verdict %q", out.Verdict)
	}
	return models.ClassifierResult{Verdict: verdict, Confidence: out.Confidence}, nil
}

// describe renders the event and the signals gathered so far. Only fields
// the model can reason about are included.
func describe(event *models.NotificationEvent, ec models.EvaluationContext) (string, error) {
	payload := map[string]interface{}{
		"event_type":           event.EventType,
		"message":              event.Message,
		"source":               event.Source,
		"priority":             event.Priority,
		"channel":              event.Channel,
		"sends_last_hour":      ec.RecentCount1h,
		"channel_sends_hour":   ec.ChannelCount1h,
		"sends_burst_window":   ec.RecentCountWindow,
		"do_not_disturb":       ec.DoNotDisturb,
		"duplicate":            ec.Duplicate,
		"in_cooldown":          ec.InCooldown,
		"opted_out_of_channel": ec.OptedOut(event.Channel),
	}
	if ec.Similarity != nil {
		payload["similarity_to_recent"] = *ec.Similarity
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode classifier input: %w", err)
	}
	return "Notification:\n" + string(data), nil
}

func (c *GenAIClassifier) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.client.Models.EmbedContent(ctx,
		c.embeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: embeddingTaskType},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return result.Embeddings[0].Values, nil
}
