// Package gateway serves the HTTP API and the WebSocket RPC/event feed.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
	"agentverse/internal/infra/middleware"
	"agentverse/internal/usecase/board"
	"agentverse/internal/usecase/chat"
	"agentverse/internal/usecase/flow"
)

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (any, error)

// Deps holds the use cases the gateway exposes.
type Deps struct {
	Flows    *flow.Service
	Chat     *chat.Service
	Settings domain.SettingsStore
	Board    *board.Board
	Bus      domain.EventBus
	Auth     Authenticator
	Logger   *slog.Logger

	// Reported by /status.
	Provider string
	Strategy string
	Version  string
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// Server is the gateway. It is an http.Handler; Start binds it to cfg.Addr.
type Server struct {
	deps    Deps
	cfg     config.GatewayConfig
	logger  *slog.Logger
	metrics *Metrics
	router  chi.Router
	started time.Time

	clients    sync.Map // connID (uint64) -> *clientConn
	nextID     atomic.Uint64
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler

	httpSrv   *http.Server
	boundAddr atomic.Value // string
	unsubAll  func()
	closeOnce sync.Once
}

// NewServer builds the router, registers the RPC methods and starts
// forwarding bus events to WebSocket clients. ctx bounds background work
// such as rate-limiter eviction.
func NewServer(ctx context.Context, cfg config.GatewayConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Auth == nil {
		deps.Auth = NewStaticTokenAuth(cfg.Auth.Tokens)
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		logger:   deps.Logger.With("component", "gateway"),
		metrics:  NewMetrics(deps.Bus),
		started:  time.Now(),
		handlers: make(map[string]RPCHandler),
	}
	s.router = s.routes(ctx)
	s.registerRPC()
	if deps.Bus != nil {
		s.unsubAll = deps.Bus.SubscribeAll(s.broadcast)
	}
	return s
}

func (s *Server) routes(ctx context.Context) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(s.cfg.CORS.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		AllowCredentials: true,
	}).Handler)
	r.Use(middleware.RateLimit(ctx, middleware.RateLimitConfig{
		RequestsPerSecond: s.cfg.RateLimit.RequestsPerSecond,
		Burst:             s.cfg.RateLimit.Burst,
		OnLimited:         rateLimited,
	}))

	r.Get("/ws", s.handleUpgrade)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(s.deps.Auth))
			r.Get("/status", s.handleStatus)
			r.Get("/metrics", s.metrics.handler(s.started))

			r.Get("/flows", s.handleListFlows)
			r.Post("/flows/{name}", s.handleInvokeFlow)
			r.Post("/chat/turn", s.rest(s.chatTurn))

			r.Get("/settings", s.rest(s.getSettings))
			r.Put("/settings", s.rest(s.putSettings))
			r.Patch("/settings", s.rest(s.patchSettings))

			r.Get("/board", s.rest(s.getBoard))
			r.Post("/board/move", s.rest(s.moveBoard))
			r.Post("/board/agents", s.restStatus(http.StatusCreated, s.addAgent))
			r.Post("/board/teams", s.restStatus(http.StatusCreated, s.addTeam))
			r.Patch("/board/teams/{id}", s.handleRenameTeam)
			r.Delete("/board/teams/{id}", s.handleRemoveTeam)
			r.Post("/board/teams/{id}/run", s.handleRunTeam)
		})
	})
	return r
}

// allowedOrigins defaults to local development origins.
func allowedOrigins(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return []string{"http://localhost:*", "http://127.0.0.1:*"}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Metrics returns the gateway's counters.
func (s *Server) Metrics() *Metrics { return s.metrics }

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr.Store(listener.Addr().String())

	s.httpSrv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		if err := s.Stop(context.Background()); err != nil {
			s.logger.Warn("gateway shutdown", "error", err)
		}
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop disconnects WebSocket clients, stops event forwarding and shuts the
// HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.Close()
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// Close releases bus subscriptions and closes every client connection.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.unsubAll != nil {
			s.unsubAll()
		}
		s.metrics.Close()
		s.clients.Range(func(key, value any) bool {
			cc := value.(*clientConn)
			cc.closeOnce.Do(func() { close(cc.done) })
			cc.ws.Close(websocket.StatusGoingAway, "server shutting down") //nolint:errcheck
			s.clients.Delete(key)
			return true
		})
	})
}

// BoundAddr returns the address the server bound to. Empty until Start binds.
func (s *Server) BoundAddr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}

// broadcast queues event for every connected client.
func (s *Server) broadcast(_ context.Context, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	frame := Frame{Type: FrameTypeEvent, Method: string(event.Type), Payload: payload}
	s.clients.Range(func(_, value any) bool {
		cc := value.(*clientConn)
		select {
		case cc.sendCh <- frame:
		default:
			s.logger.Warn("dropped event for slow client", "client", cc.info.Name, "event", event.Type)
		}
		return true
	})
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, err := s.deps.Auth.Authenticate(requestToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: domain.CodeGatewayAuth})
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.CORS.AllowedOrigins),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)
	s.metrics.WSClients.Add(1)
	s.logger.Info("client connected", "conn_id", connID, "client", clientInfo.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	s.metrics.WSClients.Add(-1)
	ws.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
	s.logger.Info("client disconnected", "conn_id", connID)
}

// originPatterns allows loopback hosts plus the hosts of the CORS origins.
func originPatterns(allowed []string) []string {
	patterns := []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "[::1]", "[::1]:*"}
	for _, o := range allowed {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	handler, ok := s.lookupRPC(req.Method)
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway.rpc", domain.ErrRPCMethodNotFound, req.Method))
		return
	}

	ctx = context.WithValue(ctx, clientKey{}, cc.info)
	result, err := handler(ctx, cc.info, req.Payload)
	if err != nil && statusFor(err) >= http.StatusInternalServerError {
		s.logger.ErrorContext(ctx, "rpc failed", "method", req.Method, "error", err)
	}
	s.sendResponse(cc, req.ID, result, err)
}

// lookupRPC resolves a method. flow.<name> routes to the flow service.
func (s *Server) lookupRPC(method string) (RPCHandler, bool) {
	s.handlersMu.RLock()
	h, ok := s.handlers[method]
	s.handlersMu.RUnlock()
	if ok {
		return h, true
	}
	if name, found := cutFlowMethod(method); found {
		return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (any, error) {
			return s.invokeFlow(ctx, name, payload)
		}, true
	}
	return nil, false
}

func (s *Server) sendResponse(cc *clientConn, id string, result any, err error) {
	resp := Frame{Type: FrameTypeResponse, ID: id}
	if err == nil && result != nil {
		payload, mErr := json.Marshal(result)
		if mErr != nil {
			err = fmt.Errorf("encode result: %w", mErr)
		} else {
			resp.Payload = payload
		}
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case cc.sendCh <- resp:
	default:
		s.logger.Warn("dropped rpc response for slow client", "frame_id", id)
	}
}
