package domain

import "fmt"

// Chat roles used in chatbot histories. These differ from provider roles.
const (
	ChatRoleUser = "user"
	ChatRoleBot  = "bot"
)

// ChatMessage is one entry of a chatbot conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidateHistory rejects entries with roles other than user or bot.
func ValidateHistory(op string, history []ChatMessage) error {
	for i, m := range history {
		if m.Role != ChatRoleUser && m.Role != ChatRoleBot {
			return NewDomainError(op, ErrValidation, fmt.Sprintf("history[%d].role %q must be user or bot", i, m.Role))
		}
	}
	return nil
}

// ChatbotPersona is the script of a lead qualification bot.
type ChatbotPersona struct {
	Name                string   `json:"name"`
	WelcomeMessage      string   `json:"welcomeMessage"`
	QualifyingQuestions []string `json:"qualifyingQuestions"`
	ClosingMessage      string   `json:"closingMessage"`
}

// SupportbotPersona is the script of a technical support bot.
type SupportbotPersona struct {
	Name                     string   `json:"name"`
	WelcomeMessage           string   `json:"welcomeMessage"`
	TroubleshootingQuestions []string `json:"troubleshootingQuestions"`
	EscalationMessage        string   `json:"escalationMessage"`
	ClosingMessage           string   `json:"closingMessage"`
}
