package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultMaxRounds is the discovery round budget when none is given.
const DefaultMaxRounds = 3

// HuntParams are the caller-supplied inputs to a hunt.
type HuntParams struct {
	Quota      int    `json:"target_count" mapstructure:"quota"`
	Focus      string `json:"therapeutic_focus" mapstructure:"focus"`
	Phase      string `json:"clinical_phase" mapstructure:"phase"`
	Geography  string `json:"geography" mapstructure:"geography"`
	Exclusions string `json:"exclusions,omitempty" mapstructure:"exclusions"`
	MaxRounds  int    `json:"max_rounds" mapstructure:"max_rounds"`
}

// WithDefaults fills zero values.
func (p HuntParams) WithDefaults() HuntParams {
	if p.MaxRounds <= 0 {
		p.MaxRounds = DefaultMaxRounds
	}
	if strings.TrimSpace(p.Geography) == "" {
		p.Geography = "Global"
	}
	return p
}

// Validate checks that the parameters describe a runnable hunt.
func (p HuntParams) Validate() error {
	if p.Quota <= 0 {
		return eris.New("model: quota must be positive")
	}
	if strings.TrimSpace(p.Focus) == "" {
		return eris.New("model: therapeutic focus is required")
	}
	if strings.TrimSpace(p.Phase) == "" {
		return eris.New("model: clinical phase is required")
	}
	if p.MaxRounds < 0 {
		return eris.New("model: max rounds cannot be negative")
	}
	return nil
}

// AsMap flattens the parameters for storage in a hunt summary.
func (p HuntParams) AsMap() map[string]any {
	return map[string]any{
		"target_count":      p.Quota,
		"therapeutic_focus": p.Focus,
		"clinical_phase":    p.Phase,
		"geography":         p.Geography,
		"exclusions":        p.Exclusions,
		"max_rounds":        p.MaxRounds,
	}
}
