package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"senseimint/internal/nft"
	"senseimint/internal/session"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-Id"

// SnapshotSource is the read side of the session controller.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// Server is a local, read-only diagnostics listener.
type Server struct {
	sessions    SnapshotSource
	httpServer  *http.Server
	log         zerolog.Logger
	rpcHealthFn func(context.Context) error
	dbHealthFn  func(context.Context) error
}

type Config struct {
	Addr     string
	Sessions SnapshotSource
	Metrics  http.Handler
	// Contract and Grants are probed by /health when they support Ping.
	Contract nft.Proxy
	Grants   any
	Logger   zerolog.Logger
}

func NewServer(cfg Config) *Server {
	s := &Server{
		sessions: cfg.Sessions,
		log:      cfg.Logger.With().Str("component", "diagnostics").Logger(),
	}

	if checker, ok := cfg.Contract.(nft.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}
	if checker, ok := cfg.Grants.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	if cfg.Metrics != nil {
		mux.Handle("/api/v1/metrics", cfg.Metrics)
	}
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/session", s.handleSession)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.requestIDMiddleware(mux),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("diagnostics listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type sessionResponse struct {
	State            string `json:"state"`
	Loading          bool   `json:"loading"`
	ConnectedAddress string `json:"connectedAddress,omitempty"`
	Network          string `json:"network,omitempty"`
	Subscribed       bool   `json:"subscribed"`
	TotalMinted      uint64 `json:"totalMinted"`
	TotalSupply      uint64 `json:"totalSupply"`
	LastMintedLink   string `json:"lastMintedLink,omitempty"`
	LastTx           string `json:"lastTx,omitempty"`
	Notice           string `json:"notice,omitempty"`
	NoticeKind       string `json:"noticeKind,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sessions == nil {
		http.Error(w, "no session", http.StatusServiceUnavailable)
		return
	}

	snap := s.sessions.Snapshot()
	resp := sessionResponse{
		State:          snap.State.String(),
		Loading:        snap.IsLoading(),
		Network:        snap.Network,
		Subscribed:     snap.Subscribed,
		TotalMinted:    snap.Status.TotalMinted,
		TotalSupply:    snap.Status.TotalSupply,
		LastMintedLink: snap.Status.LastMintedTokenLink,
	}
	if snap.ConnectedAddress != nil {
		resp.ConnectedAddress = snap.ConnectedAddress.Hex()
	}
	if snap.LastTx != (common.Hash{}) {
		resp.LastTx = snap.LastTx.Hex()
	}
	if snap.Notice != nil {
		resp.Notice = snap.Notice.Message
		resp.NoticeKind = snap.Notice.Kind.String()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	rpcInfo := struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}{}

	if s.rpcHealthFn != nil {
		start := time.Now()
		rpcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.rpcHealthFn(rpcCtx); err != nil {
			rpcInfo.Connected = false
			rpcInfo.Error = err.Error()
			overallHealthy = false
		} else {
			rpcInfo.Connected = true
			rpcInfo.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
	} else {
		rpcInfo.Connected = true
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	subscribed := false
	if s.sessions != nil {
		subscribed = s.sessions.Snapshot().Subscribed
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
		zerolog.Ctx(ctx).Warn().Str("rpc_error", rpcInfo.Error).Str("db_error", dbInfo.Error).Msg("health degraded")
	}

	resp := struct {
		Status     string      `json:"status"`
		RPC        interface{} `json:"rpc"`
		Database   interface{} `json:"database"`
		Subscribed bool        `json:"subscribed"`
	}{
		Status:     status,
		RPC:        rpcInfo,
		Database:   dbInfo,
		Subscribed: subscribed,
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// requestIDMiddleware tags each request with an id, echoed in the response
// and carried by the request logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		w.Header().Set(headerRequestID, id)

		logger := s.log.With().Str("request_id", id).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))
		next.ServeHTTP(w, r)
		logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request served")
	})
}
