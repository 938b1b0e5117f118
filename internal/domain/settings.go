package domain

import (
	"context"
	"fmt"
	"strings"
)

// SettingsStorageKey is the key generation settings are persisted under.
const SettingsStorageKey = "agentverse-settings-storage"

// GenerationSettings are the user-chosen model parameters.
type GenerationSettings struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopK        int     `json:"topK" yaml:"top_k"`
	TopP        float64 `json:"topP" yaml:"top_p"`
}

// DefaultSettings returns the settings used when nothing has been saved.
func DefaultSettings() GenerationSettings {
	return GenerationSettings{
		Model:       "gemini-2.5-flash",
		Temperature: 0.7,
		TopK:        40,
		TopP:        1.0,
	}
}

// Validate checks the recognised ranges.
func (s GenerationSettings) Validate() error {
	const op = "settings.Validate"
	if strings.TrimSpace(s.Model) == "" {
		return NewDomainError(op, ErrValidation, "model is required")
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return NewDomainError(op, ErrValidation, fmt.Sprintf("temperature %v must be between 0 and 1", s.Temperature))
	}
	if s.TopK <= 0 {
		return NewDomainError(op, ErrValidation, fmt.Sprintf("topK %d must be positive", s.TopK))
	}
	if s.TopP < 0 || s.TopP > 1 {
		return NewDomainError(op, ErrValidation, fmt.Sprintf("topP %v must be between 0 and 1", s.TopP))
	}
	return nil
}

// SettingsPatch is a partial update. Nil fields keep their current value.
type SettingsPatch struct {
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
}

// Merge returns s with the non-nil fields of p applied.
func (s GenerationSettings) Merge(p SettingsPatch) GenerationSettings {
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.Temperature != nil {
		s.Temperature = *p.Temperature
	}
	if p.TopK != nil {
		s.TopK = *p.TopK
	}
	if p.TopP != nil {
		s.TopP = *p.TopP
	}
	return s
}

// SettingsStore persists generation settings under SettingsStorageKey.
type SettingsStore interface {
	// Load returns the saved settings, or DefaultSettings when none exist.
	Load(ctx context.Context) (GenerationSettings, error)
	// Save replaces the stored settings.
	Save(ctx context.Context, s GenerationSettings) error
	// Update merges patch into the stored settings and returns the result.
	Update(ctx context.Context, patch SettingsPatch) (GenerationSettings, error)
}
