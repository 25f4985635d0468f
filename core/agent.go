package core

import "time"

// Agent names of the fixed catalog.
const (
	AgentClassification     = "classification"
	AgentStructural         = "structural"
	AgentMetadata           = "metadata"
	AgentFiscalArgentina    = "fiscal_argentina"
	AgentInternational      = "international"
	AgentConflictResolution = "conflict_resolution"
	AgentCrossValidation    = "cross_validation"
)

// AgentDescriptor configures one specialized agent. Descriptors are created
// from the catalog at process start and live in the registry.
type AgentDescriptor struct {
	Name            string        `json:"name" yaml:"name"`
	Label           string        `json:"label" yaml:"label"`
	Description     string        `json:"description" yaml:"description"`
	Specializations []string      `json:"specializations" yaml:"specializations"`
	Enabled         bool          `json:"enabled" yaml:"enabled"`
	Weight          float64       `json:"weight" yaml:"weight"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries      int           `json:"maxRetries" yaml:"max_retries"`
	MaxTokens       int64         `json:"maxTokens" yaml:"max_tokens"`
	Model           string        `json:"model,omitempty" yaml:"model"`
	// Jurisdiction limits the agent to documents of one origin ("argentina",
	// "foreign"); empty means any origin.
	Jurisdiction string `json:"jurisdiction,omitempty" yaml:"jurisdiction"`
	// UsesModel is false for heuristic agents that never call the backend.
	UsesModel      bool     `json:"usesModel" yaml:"uses_model"`
	Role           string   `json:"role" yaml:"role"`
	PromptTemplate string   `json:"promptTemplate" yaml:"prompt"`
	CriticalFields []string `json:"criticalFields,omitempty" yaml:"critical_fields"`
	BonusFields    []string `json:"bonusFields,omitempty" yaml:"bonus_fields"`
}

// Clone returns a copy that shares no slices with d.
func (d AgentDescriptor) Clone() AgentDescriptor {
	c := d
	c.Specializations = append([]string(nil), d.Specializations...)
	c.CriticalFields = append([]string(nil), d.CriticalFields...)
	c.BonusFields = append([]string(nil), d.BonusFields...)
	return c
}

// AgentUpdate is a partial descriptor update; nil fields are left untouched.
type AgentUpdate struct {
	Label           *string        `json:"label,omitempty"`
	Specializations []string       `json:"specializations,omitempty"`
	Enabled         *bool          `json:"enabled,omitempty"`
	Weight          *float64       `json:"weight,omitempty"`
	Timeout         *time.Duration `json:"timeout,omitempty"`
	MaxRetries      *int           `json:"maxRetries,omitempty"`
	MaxTokens       *int64         `json:"maxTokens,omitempty"`
	Model           *string        `json:"model,omitempty"`
	PromptTemplate  *string        `json:"promptTemplate,omitempty"`
}

// OriginHint is the classification signal used to skip jurisdiction agents.
type OriginHint struct {
	Origin     string // "argentina", a foreign country/"foreign", or "" / "unknown"
	Confidence int    // confidence of the classifying agent
}
