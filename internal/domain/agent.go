package domain

import "strings"

// ToolSpec describes a capability assigned to an agent. JSONSchema is opaque: it
// is displayed and stored but never executed.
type ToolSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	JSONSchema  string `json:"jsonSchema"`
}

// Agent is a configured team member.
type Agent struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Objectives  string     `json:"objectives"`
	Constraints string     `json:"constraints,omitempty"`
	Avatar      string     `json:"avatar,omitempty"`
	Tools       []ToolSpec `json:"tools,omitempty"`
}

// Profile projects the fields the flows consume.
func (a Agent) Profile() AgentProfile {
	return AgentProfile{Name: a.Name, Role: a.Role, Objectives: a.Objectives}
}

// AgentProfile is the subset of an agent sent to the model.
type AgentProfile struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Objectives string `json:"objectives"`
}

// OrchestrationInput is the transient request for a team run.
type OrchestrationInput struct {
	TeamName string         `json:"teamName"`
	Agents   []AgentProfile `json:"agents"`
	Task     string         `json:"task"`
}

// FindAgent returns the first agent whose name equals name exactly.
// Matching is case-sensitive; duplicate names resolve to the earliest entry.
func (in OrchestrationInput) FindAgent(name string) (AgentProfile, bool) {
	for _, a := range in.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentProfile{}, false
}

// RequireText returns a validation error if value is shorter than minLen
// after trimming whitespace. minLen below 1 is treated as 1.
func RequireText(op, field, value string, minLen int) error {
	if minLen < 1 {
		minLen = 1
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return NewDomainError(op, ErrValidation, field+" is required")
	}
	if len([]rune(trimmed)) < minLen {
		return NewDomainError(op, ErrValidation, field+" is too short")
	}
	return nil
}

// Validate checks the fields the run-agent prompt depends on.
func (p AgentProfile) Validate(op string) error {
	if err := RequireText(op, "agent.name", p.Name, 1); err != nil {
		return err
	}
	if err := RequireText(op, "agent.role", p.Role, 1); err != nil {
		return err
	}
	return RequireText(op, "agent.objectives", p.Objectives, 1)
}
