package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Preset is a timer definition produced by a Generator.
type Preset struct {
	Label           string `json:"label"`
	DurationSeconds int    `json:"durationSeconds"`
}

// Generator produces timer presets from a natural-language prompt.
// Implementations never fail: any error is reported as an empty result.
type Generator interface {
	GeneratePresets(ctx context.Context, prompt string) []Preset
}

// Disabled is the Generator used when no generation backend is configured.
type Disabled struct{}

func (Disabled) GeneratePresets(context.Context, string) []Preset { return nil }

// rawPreset is the loosely typed shape a model answers with.
type rawPreset struct {
	Label           string  `json:"label"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// validate keeps the entries with a non-empty label and a positive integral
// duration, preserving order.
func validate(raw []rawPreset) []Preset {
	out := make([]Preset, 0, len(raw))
	for _, r := range raw {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			continue
		}
		if r.DurationSeconds <= 0 || r.DurationSeconds != math.Trunc(r.DurationSeconds) || r.DurationSeconds > math.MaxInt32 {
			continue
		}
		out = append(out, Preset{Label: label, DurationSeconds: int(r.DurationSeconds)})
	}
	return out
}

// Decode parses a generated answer of the form {"timers":[{label,durationSeconds}]}
// and keeps only the valid entries.
func Decode(data []byte) ([]Preset, error) {
	var body struct {
		Timers []rawPreset `json:"timers"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode preset response: %w", err)
	}
	return validate(body.Timers), nil
}
