package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
	"agentverse/internal/infra/tracer"
)

// genaiModels is the part of *genai.Models used by the provider.
type genaiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIProvider implements domain.LLMProvider on the Google Gen AI SDK. It
// serves both the Gemini Developer API and Vertex AI backends.
type GenAIProvider struct {
	name   string
	model  string
	models genaiModels
	logger *slog.Logger
}

// NewGenAIProvider creates an SDK client for cfg.Backend ("gemini" or "vertex").
func NewGenAIProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*GenAIProvider, error) {
	cc := &genai.ClientConfig{
		HTTPClient: NewHTTPClient(cfg),
	}
	switch cfg.Backend {
	case "vertex":
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	default:
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGenAIProviderWithModels(cfg.Name, cfg.Model, client.Models, logger), nil
}

func newGenAIProviderWithModels(name, model string, models genaiModels, logger *slog.Logger) *GenAIProvider {
	return &GenAIProvider{name: name, model: model, models: models, logger: logger}
}

// Chat implements domain.LLMProvider.
func (p *GenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = modelOr(req.Model, p.model)

	ctx, span := startChatSpan(ctx, p.name, req)
	defer span.End()

	contents, gc, err := toGenAIRequest(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp, err := p.models.GenerateContent(ctx, req.Model, contents, gc)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, mapGenAIError(err)
	}

	result := fromGenAIResponse(resp)
	result.Model = modelOr(resp.ModelVersion, req.Model)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *GenAIProvider) Name() string { return p.name }

func toGenAIRequest(req domain.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	gc := &genai.GenerateContentConfig{
		Temperature:     new(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.TopK > 0 {
		gc.TopK = new(float32(req.TopK))
	}
	if req.TopP > 0 {
		gc.TopP = new(float32(req.TopP))
	}

	var contents []*genai.Content
	lastToolTurn := false
	for _, m := range req.Messages {
		switch {
		case m.Role == domain.RoleSystem:
			gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case m.Role == domain.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       extractToolCallID(m),
				Name:     m.Name,
				Response: map[string]any{"content": m.Content},
			}}
			// Responses to one model turn share a single content.
			if n := len(contents); n > 0 && lastToolTurn {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
			} else {
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
			}
		case len(m.ToolCalls) > 0:
			c := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &args); err != nil {
						return nil, nil, fmt.Errorf("decode tool call %s arguments: %w", tc.Name, err)
					}
				}
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			contents = append(contents, c)
		default:
			role := genai.RoleUser
			if m.Role == domain.RoleAssistant {
				role = genai.RoleModel
			}
			contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
		}
		lastToolTurn = m.Role == domain.RoleTool
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
			if len(t.Parameters) > 0 {
				decl.ParametersJsonSchema = t.Parameters
			}
			decls = append(decls, decl)
		}
		gc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	} else if req.JSONOutput || len(req.ResponseSchema) > 0 {
		gc.ResponseMIMEType = "application/json"
		if len(req.ResponseSchema) > 0 {
			gc.ResponseJsonSchema = req.ResponseSchema
		}
	}

	return contents, gc, nil
}

func fromGenAIResponse(resp *genai.GenerateContentResponse) *domain.ChatResponse {
	result := &domain.ChatResponse{CreatedAt: time.Now()}

	if u := resp.UsageMetadata; u != nil {
		result.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	msg := domain.Message{Role: domain.RoleAssistant, Timestamp: result.CreatedAt}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var text strings.Builder
		for i, part := range resp.Candidates[0].Content.Parts {
			switch {
			case part.FunctionCall != nil:
				id := part.FunctionCall.ID
				if id == "" {
					id = fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, i)
				}
				args, _ := json.Marshal(part.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			case part.Text != "" && !part.Thought:
				text.WriteString(part.Text)
			}
		}
		msg.Content = text.String()
	}

	result.Message = msg
	return result
}

// mapGenAIError maps SDK API errors by HTTP status, like mapHTTPError.
func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.Code, []byte(apiErr.Message))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return mapHTTPError(apiErrPtr.Code, []byte(apiErrPtr.Message))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: genai: %w", domain.ErrProviderError, err)
}

