// Package mcpserver exposes the dispatcher over the Model Context Protocol
// using the official Go SDK, with stdio and streamable-HTTP transports.
package mcpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"binancemcp/internal/ratelimit"
	"binancemcp/pkg/binance"
	"binancemcp/pkg/core"
	"binancemcp/pkg/dispatch"
	"binancemcp/pkg/registry"
)

const serverName = "binance-mcp-server"

// Config holds transport settings for the server shell.
type Config struct {
	// Version is reported in the MCP handshake.
	Version string
	// ListenAddr is the HTTP listen address; unused for stdio.
	ListenAddr string
	// AgentKey, when non-empty, must match the X-Agent-Key header of every
	// HTTP request.
	AgentKey string
}

// Deps are the wired components the server exposes.
type Deps struct {
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Client     *binance.Client
	Limiter    *ratelimit.Limiter
	Exchange   *core.Config
}

// Server is the MCP-facing shell around the dispatcher.
type Server struct {
	cfg    Config
	deps   Deps
	mcp    *mcp.Server
	logger zerolog.Logger

	httpSrv *http.Server
}

// New builds the MCP server and registers one MCP tool per catalogue entry.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "mcp_server").Logger(),
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: cfg.Version,
		}, nil),
	}

	for _, def := range deps.Registry.List() {
		s.mcp.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		}, s.toolHandler(def.Name))
	}
	return s
}

// toolHandler adapts one registered tool to the SDK handler signature. The
// dispatcher owns all validation and error shaping; protocol-level errors
// are reserved for encoding failures.
func (s *Server) toolHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, isError, err := s.invokeTool(ctx, name, req.Params.Arguments)
		if err != nil {
			return nil, err
		}
		return textResult(isError, payload), nil
	}
}

// invokeTool decodes the raw arguments, runs the dispatcher, and encodes
// the response envelope.
func (s *Server) invokeTool(ctx context.Context, name string, rawArgs []byte) (string, bool, error) {
	args := core.Params{}
	if len(rawArgs) > 0 {
		if err := sonic.Unmarshal(rawArgs, &args); err != nil {
			return `{"error":{"kind":"InvalidArgumentError","message":"arguments must be a JSON object"}}`, true, nil
		}
	}

	resp := s.deps.Dispatcher.Handle(ctx, &dispatch.ToolCallRequest{
		Tool:       name,
		Arguments:  args,
		ReceivedAt: time.Now(),
	})

	payload, err := sonic.Marshal(resp)
	if err != nil {
		return "", false, fmt.Errorf("encode response: %w", err)
	}
	return string(payload), resp.IsError(), nil
}

func textResult(isError bool, text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// RunStdio serves MCP over stdin/stdout until the context is canceled.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info().Msg("serving MCP over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable-HTTP transport plus /healthz until the
// context is canceled.
func (s *Server) RunHTTP(ctx context.Context) error {
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", s.requireAgentKey(streamable))
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("serving MCP over HTTP")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// requireAgentKey enforces the shared-secret header when configured. The
// comparison is constant-time.
func (s *Server) requireAgentKey(next http.Handler) http.Handler {
	if s.cfg.AgentKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Agent-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AgentKey)) != 1 {
			s.logger.Warn().Str("remote", r.RemoteAddr).Msg("rejected request with bad agent key")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// healthStatus is the /healthz response body.
type healthStatus struct {
	Status        string                   `json:"status"`
	Env           string                   `json:"env"`
	BaseURL       string                   `json:"base_url"`
	ClockOffsetMs int64                    `json:"clock_offset_ms"`
	Breaker       string                   `json:"breaker"`
	Limiter       ratelimit.MetricsSnapshot `json:"limiter"`
	Dispatch      dispatch.MetricsSnapshot  `json:"dispatch"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:   "ok",
		Dispatch: s.deps.Dispatcher.Metrics(),
	}
	if s.deps.Exchange != nil {
		status.Env = s.deps.Exchange.Env
		status.BaseURL = s.deps.Exchange.ResolveBaseURL()
	}
	if s.deps.Client != nil {
		status.ClockOffsetMs = s.deps.Client.ClockOffset().Milliseconds()
		status.Breaker = s.deps.Client.BreakerState().String()
	}
	if s.deps.Limiter != nil {
		status.Limiter = s.deps.Limiter.Metrics()
	}

	body, err := sonic.Marshal(status)
	if err != nil {
		http.Error(w, "encode failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
