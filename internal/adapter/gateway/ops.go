package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"agentverse/internal/domain"
	"agentverse/internal/usecase/board"
	"agentverse/internal/usecase/flow"
)

// op is one gateway operation shared by the REST and RPC surfaces.
type op func(ctx context.Context, payload json.RawMessage) (any, error)

func decode(opName string, raw json.RawMessage, v any) error {
	if err := flow.DecodeInput(raw, v); err != nil {
		return domain.NewDomainError(opName, domain.ErrValidation, err.Error())
	}
	return nil
}

func cutFlowMethod(method string) (string, bool) {
	return strings.CutPrefix(method, "flow.")
}

func (s *Server) invokeFlow(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	return s.deps.Flows.Invoke(ctx, name, payload)
}

type flowList struct {
	Flows []string `json:"flows"`
}

func (s *Server) listFlows(context.Context, json.RawMessage) (any, error) {
	return flowList{Flows: s.deps.Flows.Names()}, nil
}

type chatTurnRequest struct {
	Persona  string                `json:"persona"`
	History  []domain.ChatMessage  `json:"history"`
	Settings *domain.SettingsPatch `json:"settings,omitempty"`
}

func (s *Server) chatTurn(ctx context.Context, payload json.RawMessage) (any, error) {
	var req chatTurnRequest
	if err := decode("gateway.chatTurn", payload, &req); err != nil {
		return nil, err
	}
	var opts []flow.Option
	if req.Settings != nil {
		opts = append(opts, flow.WithSettingsPatch(*req.Settings))
	}
	return s.deps.Chat.Turn(ctx, req.Persona, req.History, opts...)
}

func (s *Server) getSettings(ctx context.Context, _ json.RawMessage) (any, error) {
	return s.deps.Settings.Load(ctx)
}

func (s *Server) putSettings(ctx context.Context, payload json.RawMessage) (any, error) {
	var settings domain.GenerationSettings
	if err := decode("gateway.putSettings", payload, &settings); err != nil {
		return nil, err
	}
	if err := s.deps.Settings.Save(ctx, settings); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventSettingsUpdated, settings)
	return settings, nil
}

func (s *Server) patchSettings(ctx context.Context, payload json.RawMessage) (any, error) {
	var patch domain.SettingsPatch
	if err := decode("gateway.patchSettings", payload, &patch); err != nil {
		return nil, err
	}
	settings, err := s.deps.Settings.Update(ctx, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventSettingsUpdated, settings)
	return settings, nil
}

func (s *Server) getBoard(context.Context, json.RawMessage) (any, error) {
	return s.deps.Board.Snapshot(), nil
}

type moveRequest struct {
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId"`
}

func (s *Server) moveBoard(ctx context.Context, payload json.RawMessage) (any, error) {
	var req moveRequest
	if err := decode("gateway.moveBoard", payload, &req); err != nil {
		return nil, err
	}
	if req.ActiveID == "" || req.OverID == "" {
		return nil, domain.NewDomainError("gateway.moveBoard", domain.ErrValidation, "activeId and overId are required")
	}
	if err := s.deps.Board.Move(req.ActiveID, req.OverID); err != nil {
		return nil, err
	}
	return s.boardChanged(ctx), nil
}

func (s *Server) addAgent(ctx context.Context, payload json.RawMessage) (any, error) {
	var agent domain.Agent
	if err := decode("gateway.addAgent", payload, &agent); err != nil {
		return nil, err
	}
	added, err := s.deps.Board.AddAgent(agent)
	if err != nil {
		return nil, err
	}
	s.boardChanged(ctx)
	return added, nil
}

type teamRequest struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

func (s *Server) addTeam(ctx context.Context, payload json.RawMessage) (any, error) {
	var req teamRequest
	if err := decode("gateway.addTeam", payload, &req); err != nil {
		return nil, err
	}
	c, err := s.deps.Board.AddTeam(req.ID, req.Title)
	if err != nil {
		return nil, err
	}
	s.boardChanged(ctx)
	return c, nil
}

func (s *Server) renameTeam(ctx context.Context, id string, payload json.RawMessage) (any, error) {
	var req teamRequest
	if err := decode("gateway.renameTeam", payload, &req); err != nil {
		return nil, err
	}
	if err := s.deps.Board.RenameTeam(id, req.Title); err != nil {
		return nil, err
	}
	return s.boardChanged(ctx), nil
}

func (s *Server) removeTeam(ctx context.Context, id string) (any, error) {
	if err := s.deps.Board.RemoveTeam(id); err != nil {
		return nil, err
	}
	return s.boardChanged(ctx), nil
}

type runTeamRequest struct {
	Task string `json:"task"`
}

// runTeam orchestrates the agents currently in a team container.
func (s *Server) runTeam(ctx context.Context, id string, payload json.RawMessage) (any, error) {
	var req runTeamRequest
	if err := decode("gateway.runTeam", payload, &req); err != nil {
		return nil, err
	}
	in, err := s.deps.Board.TeamInput(id, req.Task)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return s.deps.Flows.Invoke(ctx, flow.NameRunOrchestration, raw)
}

func (s *Server) boardChanged(ctx context.Context) board.Snapshot {
	snap := s.deps.Board.Snapshot()
	s.publish(ctx, domain.EventBoardChanged, snap)
	return snap
}

func (s *Server) publish(ctx context.Context, t domain.EventType, payload any) {
	if s.deps.Bus == nil {
		return
	}
	s.deps.Bus.Publish(ctx, domain.NewEvent(t, "", payload))
}
