// Package gemini generates timer presets with Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/mcdev12/timersync/go/internal/presets"
)

const DefaultModel = "gemini-2.5-flash"

// Config holds Gemini client settings.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint; empty uses the public one.
	BaseURL string
}

// Generator asks Gemini for a set of timers.
type Generator struct {
	client *genai.Client
	model  string
}

var _ presets.Generator = (*Generator)(nil)

// NewGenerator creates a Gemini-backed preset generator.
func NewGenerator(ctx context.Context, config Config) (*Generator, error) {
	if config.APIKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: config.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Generator{
		client: client,
		model:  config.Model,
	}, nil
}

// responseSchema constrains the model to {"timers":[{"label","durationSeconds"}]}.
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"timers": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label":           {Type: genai.TypeString},
					"durationSeconds": {Type: genai.TypeNumber},
				},
				Required: []string{"label", "durationSeconds"},
			},
		},
	},
}

// GeneratePresets implements presets.Generator. Failures are logged and
// yield no presets.
func (g *Generator) GeneratePresets(ctx context.Context, prompt string) []presets.Preset {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil
	}

	contents := genai.Text(fmt.Sprintf(
		"Create a set of countdown timers for: %q. Provide up to 6 timers with labels and durations in seconds.",
		prompt,
	))
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	})
	if err != nil {
		log.Error().Err(err).Str("model", g.model).Msg("preset generation failed")
		return nil
	}

	generated, err := presets.Decode([]byte(result.Text()))
	if err != nil {
		log.Error().Err(err).Str("model", g.model).Msg("failed to parse generated presets")
		return nil
	}

	log.Debug().
		Str("model", g.model).
		Int("presets", len(generated)).
		Msg("generated presets")
	return generated
}

// Name returns the generator name.
func (g *Generator) Name() string {
	return fmt.Sprintf("genai:%s", g.model)
}
