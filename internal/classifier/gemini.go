package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"murmur/internal/config"

	"google.golang.org/genai"
)

const moderationPrompt = `You are an AI content moderator for a social media platform. Your task is to determine if a post is offensive.

Analyze the following post content for any of the following violations:
- Hate speech
- Harassment
- Violence
- Self-harm
- Nudity or sexual content

Post Content: %s

If the post is offensive, set the 'violating' field to true and provide a concise reason in the 'reason' field.
If the post is not offensive, set the 'violating' field to false and the 'reason' field to an empty string.`

// verdictSchema constrains the model to the {violating, reason} shape.
var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"violating": {Type: genai.TypeBoolean},
		"reason":    {Type: genai.TypeString},
	},
	Required: []string{"violating", "reason"},
}

// GeminiGateway classifies content with Google's Gemini API using structured
// JSON output and deployment-configured per-category safety thresholds.
type GeminiGateway struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	safety  []*genai.SafetySetting
}

// NewGeminiGateway creates a gateway for the given model. Thresholds come
// from deployment configuration and are sent on every call.
func NewGeminiGateway(ctx context.Context, apiKey, model string, timeout time.Duration, thresholds config.SafetyThresholds) (*GeminiGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	safety, err := buildSafetySettings(thresholds)
	if err != nil {
		return nil, err
	}

	return &GeminiGateway{
		client:  client,
		model:   model,
		timeout: timeout,
		safety:  safety,
	}, nil
}

// Classify sends content to the model and parses the structured verdict.
func (g *GeminiGateway) Classify(ctx context.Context, content string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(fmt.Sprintf(moderationPrompt, content)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   verdictSchema,
			SafetySettings:   g.safety,
		},
	)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return ParseVerdict(resp.Text())
}

// ParseVerdict decodes the model's JSON output into a Verdict.
func ParseVerdict(raw string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Verdict{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return verdict, nil
}

// category and threshold names accepted in moderation.yml.
var (
	harmCategories = map[string]genai.HarmCategory{
		"hate_speech":       genai.HarmCategoryHateSpeech,
		"dangerous_content": genai.HarmCategoryDangerousContent,
		"harassment":        genai.HarmCategoryHarassment,
		"sexually_explicit": genai.HarmCategorySexuallyExplicit,
	}
	blockThresholds = map[string]genai.HarmBlockThreshold{
		"block_none":             genai.HarmBlockThresholdBlockNone,
		"block_only_high":        genai.HarmBlockThresholdBlockOnlyHigh,
		"block_medium_and_above": genai.HarmBlockThresholdBlockMediumAndAbove,
		"block_low_and_above":    genai.HarmBlockThresholdBlockLowAndAbove,
	}
)

func buildSafetySettings(thresholds config.SafetyThresholds) ([]*genai.SafetySetting, error) {
	settings := make([]*genai.SafetySetting, 0, len(thresholds))
	for category, threshold := range thresholds {
		cat, ok := harmCategories[category]
		if !ok {
			return nil, fmt.Errorf("unknown harm category %q", category)
		}
		thr, ok := blockThresholds[threshold]
		if !ok {
			return nil, fmt.Errorf("unknown block threshold %q for category %q", threshold, category)
		}
		settings = append(settings, &genai.SafetySetting{
			Category:  cat,
			Threshold: thr,
		})
	}
	return settings, nil
}
