package gateway

import (
	"context"
	"encoding/json"
)

// RPC method names. Flows are reached as "flow.<name>".
const (
	MethodFlowList       = "flow.list"
	MethodChatTurn       = "chat.turn"
	MethodSettingsGet    = "settings.get"
	MethodSettingsUpdate = "settings.update"
	MethodBoardGet       = "board.get"
	MethodBoardMove      = "board.move"
)

func (s *Server) registerRPC() {
	s.RegisterHandler(MethodFlowList, rpc(s.listFlows))
	s.RegisterHandler(MethodChatTurn, rpc(s.chatTurn))
	s.RegisterHandler(MethodSettingsGet, rpc(s.getSettings))
	s.RegisterHandler(MethodSettingsUpdate, rpc(s.patchSettings))
	s.RegisterHandler(MethodBoardGet, rpc(s.getBoard))
	s.RegisterHandler(MethodBoardMove, rpc(s.moveBoard))
}

func rpc(fn op) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
		return fn(ctx, payload)
	}
}
