package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"agentverse/internal/domain"
)

// Metrics counts bus events for /metrics and /status.
type Metrics struct {
	FlowRuns              atomic.Int64
	FlowFailures          atomic.Int64
	Delegations           atomic.Int64
	DelegationMisses      atomic.Int64
	OrchestrationRuns     atomic.Int64
	OrchestrationFailures atomic.Int64
	SettingsUpdates       atomic.Int64
	LLMCalls              atomic.Int64
	LLMTokens             atomic.Int64
	WSClients             atomic.Int64

	unsubs []func()
}

// NewMetrics subscribes to bus. A nil bus leaves every counter at zero.
func NewMetrics(bus domain.EventBus) *Metrics {
	m := &Metrics{}
	if bus == nil {
		return m
	}
	count := func(t domain.EventType, c *atomic.Int64) {
		m.unsubs = append(m.unsubs, bus.Subscribe(t, func(context.Context, domain.Event) { c.Add(1) }))
	}
	count(domain.EventFlowCompleted, &m.FlowRuns)
	count(domain.EventFlowFailed, &m.FlowFailures)
	count(domain.EventOrchestrationCompleted, &m.OrchestrationRuns)
	count(domain.EventOrchestrationFailed, &m.OrchestrationFailures)
	count(domain.EventSettingsUpdated, &m.SettingsUpdates)
	m.unsubs = append(m.unsubs, bus.Subscribe(domain.EventLLMCallCompleted, func(_ context.Context, e domain.Event) {
		m.LLMCalls.Add(1)
		var p domain.LLMCallPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			m.LLMTokens.Add(int64(p.TotalTokens))
		}
	}))
	m.unsubs = append(m.unsubs, bus.Subscribe(domain.EventDelegationCompleted, func(_ context.Context, e domain.Event) {
		m.Delegations.Add(1)
		var p domain.DelegationEventPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil && !p.Found {
			m.DelegationMisses.Add(1)
		}
	}))
	return m
}

// Close stops counting.
func (m *Metrics) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
}

type metric struct {
	name, help, kind string
	value            string
}

// handler writes the Prometheus text exposition format.
func (m *Metrics) handler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		counter := func(name, help string, v *atomic.Int64) metric {
			return metric{name, help, "counter", fmt.Sprintf("%d", v.Load())}
		}
		metrics := []metric{
			counter("agentverse_flow_runs_total", "Flow runs that completed.", &m.FlowRuns),
			counter("agentverse_flow_failures_total", "Flow runs that failed.", &m.FlowFailures),
			counter("agentverse_delegations_total", "runAgent tool calls answered.", &m.Delegations),
			counter("agentverse_delegation_misses_total", "runAgent calls naming an agent outside the team.", &m.DelegationMisses),
			counter("agentverse_orchestrations_total", "Orchestrations that completed.", &m.OrchestrationRuns),
			counter("agentverse_orchestration_failures_total", "Orchestrations that failed.", &m.OrchestrationFailures),
			counter("agentverse_llm_calls_total", "Model calls that returned.", &m.LLMCalls),
			counter("agentverse_llm_tokens_total", "Tokens reported by the provider.", &m.LLMTokens),
			counter("agentverse_settings_updates_total", "Generation settings writes.", &m.SettingsUpdates),
			{"agentverse_ws_clients", "Connected WebSocket clients.", "gauge", fmt.Sprintf("%d", m.WSClients.Load())},
			{"agentverse_uptime_seconds", "Seconds since the gateway started.", "gauge", fmt.Sprintf("%.0f", time.Since(started).Seconds())},
			{"go_goroutines", "Number of goroutines.", "gauge", fmt.Sprintf("%d", runtime.NumGoroutine())},
			{"go_memstats_alloc_bytes", "Bytes of allocated heap objects.", "gauge", fmt.Sprintf("%d", mem.Alloc)},
			{"go_memstats_sys_bytes", "Total bytes of memory obtained from the OS.", "gauge", fmt.Sprintf("%d", mem.Sys)},
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		for _, mt := range metrics {
			fmt.Fprintf(w, "# HELP %s %s\n", mt.name, mt.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", mt.name, mt.kind)
			fmt.Fprintf(w, "%s %s\n", mt.name, mt.value)
		}
	}
}
