package gateway

import (
	"net/http"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service  ServiceStatus `json:"service"`
	Provider string        `json:"provider"`
	Strategy string        `json:"strategy"`
	Flows    []string      `json:"flows"`
	Counters CounterStatus `json:"counters"`
}

// ServiceStatus holds build and uptime info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// CounterStatus mirrors the Prometheus counters.
type CounterStatus struct {
	FlowRuns              int64 `json:"flow_runs"`
	FlowFailures          int64 `json:"flow_failures"`
	Delegations           int64 `json:"delegations"`
	OrchestrationRuns     int64 `json:"orchestration_runs"`
	OrchestrationFailures int64 `json:"orchestration_failures"`
	LLMCalls              int64 `json:"llm_calls"`
	LLMTokens             int64 `json:"llm_tokens"`
	WSClients             int64 `json:"ws_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	writeJSON(w, http.StatusOK, StatusResponse{
		Service: ServiceStatus{
			Name:          "agentverse",
			Version:       s.deps.Version,
			UptimeSeconds: int64(time.Since(s.started).Seconds()),
		},
		Provider: s.deps.Provider,
		Strategy: s.deps.Strategy,
		Flows:    s.deps.Flows.Names(),
		Counters: CounterStatus{
			FlowRuns:              m.FlowRuns.Load(),
			FlowFailures:          m.FlowFailures.Load(),
			Delegations:           m.Delegations.Load(),
			OrchestrationRuns:     m.OrchestrationRuns.Load(),
			OrchestrationFailures: m.OrchestrationFailures.Load(),
			LLMCalls:              m.LLMCalls.Load(),
			LLMTokens:             m.LLMTokens.Load(),
			WSClients:             m.WSClients.Load(),
		},
	})
}
