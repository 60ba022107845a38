package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utrading/utrading-pod-stream/pkg/goplus"
	"github.com/utrading/utrading-pod-stream/pkg/logger"
)

// ConnectionRef is the read-only view of the node connection.
type ConnectionRef interface {
	StateName() string
	IsConnected() bool
	SubscriptionCount() int
	MaxSubscriptions() int
}

// PublisherRef is the read-only view of the NATS publisher.
type PublisherRef interface {
	IsConnected() bool
}

// StatsRef supplies free-form stats for /status.
type StatsRef interface {
	GetStats() map[string]any
}

// HealthServer serves liveness, readiness, status and prometheus metrics.
type HealthServer struct {
	addr      string
	conn      ConnectionRef
	publisher PublisherRef
	stats     StatsRef

	server    *http.Server
	listener  net.Listener
	mu        sync.RWMutex
	healthy   bool
	startTime time.Time
}

func NewHealthServer(addr string, conn ConnectionRef, publisher PublisherRef, stats StatsRef) *HealthServer {
	return &HealthServer{
		addr:      addr,
		conn:      conn,
		publisher: publisher,
		stats:     stats,
		healthy:   true,
		startTime: time.Now(),
	}
}

func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/health/ready", h.readyHandler)
	mux.HandleFunc("/health/live", h.liveHandler)
	mux.HandleFunc("/status", h.statusHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start binds the listen address and serves in the background.
func (h *HealthServer) Start() error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}
	h.listener = ln
	h.server = &http.Server{
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	goplus.Go(func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("health server error")
		}
	})
	logger.Info().Str("addr", ln.Addr().String()).Msg("health server started")
	return nil
}

// Addr is the bound address, useful when started on port 0.
func (h *HealthServer) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

func (h *HealthServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.healthy = false
	h.mu.Unlock()
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, _ *http.Request) {
	status := h.getHealthStatus()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *HealthServer) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if !h.isReady() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthServer) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, _ *http.Request) {
	status := h.getHealthStatus()
	if h.stats != nil {
		status.Stats = h.stats.GetStats()
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *HealthServer) isReady() bool {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()
	if !healthy {
		return false
	}
	return h.conn == nil || h.conn.IsConnected()
}

func (h *HealthServer) getHealthStatus() HealthStatus {
	h.mu.RLock()
	healthy := h.healthy
	h.mu.RUnlock()

	st := HealthStatus{
		Healthy: healthy,
		Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
	}
	if h.conn != nil {
		st.WebSocket = WebSocketStatus{
			State:            h.conn.StateName(),
			Connected:        h.conn.IsConnected(),
			Subscriptions:    h.conn.SubscriptionCount(),
			MaxSubscriptions: h.conn.MaxSubscriptions(),
		}
	}
	if h.publisher != nil {
		st.NATS = &NATSStatus{Connected: h.publisher.IsConnected()}
	}
	return st
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("encode health response")
	}
}

type HealthStatus struct {
	Healthy   bool            `json:"healthy"`
	Uptime    string          `json:"uptime"`
	WebSocket WebSocketStatus `json:"websocket"`
	NATS      *NATSStatus     `json:"nats,omitempty"`
	Stats     map[string]any  `json:"stats,omitempty"`
}

type WebSocketStatus struct {
	State            string `json:"state"`
	Connected        bool   `json:"connected"`
	Subscriptions    int    `json:"subscriptions"`
	MaxSubscriptions int    `json:"max_subscriptions"`
}

type NATSStatus struct {
	Connected bool `json:"connected"`
}
