package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agentverse/internal/domain"
)

// Flow names as exposed over HTTP, WebSocket and the CLI.
const (
	NameCreateAgentProfile     = "createAgentProfile"
	NameSuggestToolDescription = "suggestToolDescription"
	NameCreateChatbot          = "createChatbot"
	NameCreateSupportbot       = "createSupportbot"
	NameCreateSamContent       = "createSamContent"
	NameRunAgent               = "runAgent"
	NameRunChatbot             = "runChatbot"
	NameRunOrchestration       = "runOrchestration"
)

// --- createAgentProfile ---

type CreateAgentProfileInput struct {
	RoleDescription string `json:"roleDescription"`
}

type CreateAgentProfileOutput struct {
	AgentProfile string `json:"agentProfile"`
}

var CreateAgentProfileDef = Definition[CreateAgentProfileInput, CreateAgentProfileOutput]{
	Name:     NameCreateAgentProfile,
	Template: "createAgentProfile.tmpl",
	OutputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"agentProfile": {
				"type": "string",
				"description": "A detailed profile for the agent, including specific objectives, constraints, and recommended tools."
			}
		},
		"required": ["agentProfile"]
	}`),
	Validate: func(op string, in CreateAgentProfileInput) error {
		return domain.RequireText(op, "roleDescription", in.RoleDescription, 1)
	},
}

// --- suggestToolDescription ---

// SuggestToolDescriptionInput may carry per-call generation overrides.
type SuggestToolDescriptionInput struct {
	ToolDescription string                `json:"toolDescription"`
	Config          *domain.SettingsPatch `json:"config,omitempty"`
}

type SuggestToolDescriptionOutput struct {
	JSONSchema string `json:"jsonSchema"`
}

var SuggestToolDescriptionDef = Definition[SuggestToolDescriptionInput, SuggestToolDescriptionOutput]{
	Name:     NameSuggestToolDescription,
	Template: "suggestToolDescription.tmpl",
	OutputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"jsonSchema": {
				"type": "string",
				"description": "A JSON schema that describes the input fields and authorizations required for the tool."
			}
		},
		"required": ["jsonSchema"]
	}`),
	Validate: func(op string, in SuggestToolDescriptionInput) error {
		return domain.RequireText(op, "toolDescription", in.ToolDescription, 1)
	},
	Check: func(out *SuggestToolDescriptionOutput) error {
		if !json.Valid([]byte(out.JSONSchema)) {
			return errors.New("jsonSchema is not valid JSON")
		}
		return nil
	},
}

// --- createChatbot ---

type CreateChatbotInput struct {
	BusinessDescription string `json:"businessDescription"`
	ChatbotRole         string `json:"chatbotRole"`
}

type CreateChatbotOutput struct {
	ChatbotPersona domain.ChatbotPersona `json:"chatbotPersona"`
}

var CreateChatbotDef = Definition[CreateChatbotInput, CreateChatbotOutput]{
	Name:     NameCreateChatbot,
	Template: "createChatbot.tmpl",
	OutputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"chatbotPersona": {
				"type": "object",
				"description": "The detailed persona and script for the lead qualification chatbot.",
				"properties": {
					"name": {"type": "string", "description": "A friendly and appropriate name for the chatbot."},
					"welcomeMessage": {"type": "string", "description": "A warm welcome message that introduces the bot and the business."},
					"qualifyingQuestions": {
						"type": "array",
						"items": {"type": "string"},
						"minItems": 3,
						"maxItems": 5,
						"description": "A series of 3-5 questions to qualify the lead (e.g., asking about budget, timeline, needs)."
					},
					"closingMessage": {"type": "string", "description": "A closing message to thank the user and explain the next steps."}
				},
				"required": ["name", "welcomeMessage", "qualifyingQuestions", "closingMessage"]
			}
		},
		"required": ["chatbotPersona"]
	}`),
	Validate: func(op string, in CreateChatbotInput) error {
		if err := domain.RequireText(op, "businessDescription", in.BusinessDescription, 1); err != nil {
			return err
		}
		return domain.RequireText(op, "chatbotRole", in.ChatbotRole, 1)
	},
}

// --- createSupportbot ---

type CreateSupportbotInput struct {
	ProductDescription string `json:"productDescription"`
	ChatbotRole        string `json:"chatbotRole"`
}

type CreateSupportbotOutput struct {
	SupportbotPersona domain.SupportbotPersona `json:"supportbotPersona"`
}

var CreateSupportbotDef = Definition[CreateSupportbotInput, CreateSupportbotOutput]{
	Name:     NameCreateSupportbot,
	Template: "createSupportbot.tmpl",
	OutputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"supportbotPersona": {
				"type": "object",
				"description": "The detailed persona and script for the technical support chatbot.",
				"properties": {
					"name": {"type": "string", "description": "An appropriate and trustworthy name for the support bot."},
					"welcomeMessage": {"type": "string", "description": "A welcome message that introduces the bot and gathers the initial user problem. It should not use a placeholder for the product name."},
					"troubleshootingQuestions": {
						"type": "array",
						"items": {"type": "string"},
						"minItems": 3,
						"maxItems": 5,
						"description": "A series of 3-5 questions to diagnose the user's issue (e.g., asking about error messages, what they've already tried)."
					},
					"escalationMessage": {"type": "string", "description": "A message to use when the bot cannot solve the issue, explaining how to connect with a human support agent."},
					"closingMessage": {"type": "string", "description": "A closing message to confirm if the issue was resolved and thank the user for their time."}
				},
				"required": ["name", "welcomeMessage", "troubleshootingQuestions", "escalationMessage", "closingMessage"]
			}
		},
		"required": ["supportbotPersona"]
	}`),
	Validate: func(op string, in CreateSupportbotInput) error {
		if err := domain.RequireText(op, "productDescription", in.ProductDescription, 1); err != nil {
			return err
		}
		return domain.RequireText(op, "chatbotRole", in.ChatbotRole, 1)
	},
}

// --- createSamContent ---

type CreateSamContentInput struct {
	Topic string `json:"topic"`
}

type CreateSamContentOutput struct {
	BlogPost string `json:"blogPost"`
}

var CreateSamContentDef = Definition[CreateSamContentInput, CreateSamContentOutput]{
	Name:     NameCreateSamContent,
	Template: "createSamContent.tmpl",
	OutputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"blogPost": {
				"type": "string",
				"description": "The full blog post content, formatted in Markdown, adhering to all SAM guidelines."
			}
		},
		"required": ["blogPost"]
	}`),
	Validate: func(op string, in CreateSamContentInput) error {
		return domain.RequireText(op, "topic", in.Topic, 1)
	},
}

// --- runAgent ---

type RunAgentInput struct {
	Agent domain.AgentProfile `json:"agent"`
	Task  string              `json:"task"`
}

// ResultOutput is the Markdown result shared by runAgent and runOrchestration.
type ResultOutput struct {
	Result string `json:"result"`
}

var resultSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"result": {"type": "string", "description": "The final result, formatted as Markdown."}
	},
	"required": ["result"]
}`)

var RunAgentDef = Definition[RunAgentInput, ResultOutput]{
	Name:         NameRunAgent,
	Template:     "runAgent.tmpl",
	OutputSchema: resultSchema,
	Validate: func(op string, in RunAgentInput) error {
		if err := in.Agent.Validate(op); err != nil {
			return err
		}
		return domain.RequireText(op, "task", in.Task, 1)
	},
}

// --- runChatbot ---

type RunChatbotInput struct {
	Persona string               `json:"persona"`
	History []domain.ChatMessage `json:"history"`
}

type RunChatbotOutput struct {
	Message string `json:"message"`
}

var RunChatbotDef = Definition[RunChatbotInput, RunChatbotOutput]{
	Name:     NameRunChatbot,
	Template: "runChatbot.tmpl",
	OutputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"message": {"type": "string", "description": "The chatbot's response to the user's last message."}
		},
		"required": ["message"]
	}`),
	Validate: func(op string, in RunChatbotInput) error {
		if err := domain.RequireText(op, "persona", in.Persona, 1); err != nil {
			return err
		}
		return domain.ValidateHistory(op, in.History)
	},
}

// --- runOrchestration ---

// RunOrchestrationDef is the coordinator prompt used with the runAgent tool.
var RunOrchestrationDef = Definition[domain.OrchestrationInput, ResultOutput]{
	Name:         NameRunOrchestration,
	Template:     "runOrchestration.tmpl",
	OutputSchema: resultSchema,
	Validate:     validateOrchestration,
}

// SimulateOrchestrationDef asks for the whole collaboration in one reply.
var SimulateOrchestrationDef = Definition[domain.OrchestrationInput, ResultOutput]{
	Name:         NameRunOrchestration,
	Template:     "runOrchestrationSimulate.tmpl",
	OutputSchema: resultSchema,
	Validate:     validateOrchestration,
}

func validateOrchestration(op string, in domain.OrchestrationInput) error {
	if err := domain.RequireText(op, "teamName", in.TeamName, 1); err != nil {
		return err
	}
	if err := domain.RequireText(op, "task", in.Task, 1); err != nil {
		return err
	}
	if len(in.Agents) == 0 {
		return domain.NewDomainError(op, domain.ErrValidation, "agents must not be empty")
	}
	for i, a := range in.Agents {
		if err := a.Validate(op); err != nil {
			return fmt.Errorf("agents[%d]: %w", i, err)
		}
	}
	return nil
}

// --- typed entry points ---

func (s *Service) CreateAgentProfile(ctx context.Context, in CreateAgentProfileInput, opts ...Option) (*CreateAgentProfileOutput, error) {
	return Run(ctx, s.engine, CreateAgentProfileDef, in, opts...)
}

// SuggestToolDescription applies in.Config over the resolved settings.
func (s *Service) SuggestToolDescription(ctx context.Context, in SuggestToolDescriptionInput, opts ...Option) (*SuggestToolDescriptionOutput, error) {
	if in.Config != nil {
		opts = append(opts, WithSettingsPatch(*in.Config))
	}
	return Run(ctx, s.engine, SuggestToolDescriptionDef, in, opts...)
}

func (s *Service) CreateChatbot(ctx context.Context, in CreateChatbotInput, opts ...Option) (*CreateChatbotOutput, error) {
	return Run(ctx, s.engine, CreateChatbotDef, in, opts...)
}

func (s *Service) CreateSupportbot(ctx context.Context, in CreateSupportbotInput, opts ...Option) (*CreateSupportbotOutput, error) {
	return Run(ctx, s.engine, CreateSupportbotDef, in, opts...)
}

func (s *Service) CreateSamContent(ctx context.Context, in CreateSamContentInput, opts ...Option) (*CreateSamContentOutput, error) {
	return Run(ctx, s.engine, CreateSamContentDef, in, opts...)
}

func (s *Service) RunAgent(ctx context.Context, in RunAgentInput, opts ...Option) (*ResultOutput, error) {
	return Run(ctx, s.engine, RunAgentDef, in, opts...)
}

func (s *Service) RunChatbot(ctx context.Context, in RunChatbotInput, opts ...Option) (*RunChatbotOutput, error) {
	return Run(ctx, s.engine, RunChatbotDef, in, opts...)
}
