// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.mau.fi/util/jsontime"
)

// NapcatConnector accepts reverse WebSocket connections from NapCat gateways
// and serves the adapter's HTTP endpoints.
type NapcatConnector struct {
	Config     *Config
	Dispatcher Dispatcher
	Images     ImageFetcher
	Metrics    *Metrics
	Log        zerolog.Logger

	registry *prometheus.Registry
	upgrader websocket.Upgrader

	baseCtx   context.Context
	clients   map[*NapcatClient]struct{}
	clientsMu sync.RWMutex
}

// NewNapcatConnector wires a connector. cfg must already be post-processed.
func NewNapcatConnector(cfg *Config, dispatcher Dispatcher, images ImageFetcher, log zerolog.Logger) *NapcatConnector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &NapcatConnector{
		Config:     cfg,
		Dispatcher: dispatcher,
		Images:     images,
		Metrics:    NewMetrics(registry),
		Log:        log,
		registry:   registry,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		clients: make(map[*NapcatClient]struct{}),
	}
}

// Handler returns the HTTP routes: the gateway WebSocket at / and /ws,
// /healthz, and /metrics when enabled.
func (nc *NapcatConnector) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", nc.HandleHealthz).Methods(http.MethodGet)
	if nc.Config.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(nc.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/", nc.HandleGateway)
	r.HandleFunc("/ws", nc.HandleGateway)
	return r
}

// Run serves the gateway listener until ctx is canceled, then closes every
// open gateway connection.
func (nc *NapcatConnector) Run(ctx context.Context) error {
	nc.baseCtx = ctx
	addr := nc.Config.ListenAddr()
	server := &http.Server{
		Addr:              addr,
		Handler:           nc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		nc.Log.Info().Str("addr", addr).Msg("Waiting for NapCat to connect")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway server failed: %w", err)
	case <-ctx.Done():
	}

	nc.Log.Info().Msg("Shutting down gateway server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	for _, client := range nc.Clients() {
		client.Disconnect()
	}
	if err != nil {
		return fmt.Errorf("failed to shut down gateway server: %w", err)
	}
	return nil
}

func (nc *NapcatConnector) context() context.Context {
	if nc.baseCtx == nil {
		return context.Background()
	}
	return nc.baseCtx
}

// HandleGateway upgrades a NapCat reverse WebSocket connection and serves it
// until it closes.
func (nc *NapcatConnector) HandleGateway(w http.ResponseWriter, r *http.Request) {
	if !nc.authorized(r) {
		nc.Log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Rejected gateway connection with bad access token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := nc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		nc.Log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Failed to upgrade gateway connection")
		return
	}

	client := NewNapcatClient(nc, conn, r.RemoteAddr, ParseID(r.Header.Get("X-Self-ID")))
	nc.addClient(client)
	defer nc.removeClient(client)
	client.Run(nc.context())
}

// authorized checks the configured access token against the bearer token or
// the access_token query parameter.
func (nc *NapcatConnector) authorized(r *http.Request) bool {
	want := nc.Config.Napcat.AccessToken
	if want == "" {
		return true
	}
	got := r.URL.Query().Get("access_token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		for _, prefix := range []string{"Bearer ", "Token "} {
			if token, ok := strings.CutPrefix(auth, prefix); ok {
				got = token
				break
			}
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (nc *NapcatConnector) addClient(client *NapcatClient) {
	nc.clientsMu.Lock()
	nc.clients[client] = struct{}{}
	nc.clientsMu.Unlock()
	nc.Metrics.Connections.Inc()
}

func (nc *NapcatConnector) removeClient(client *NapcatClient) {
	nc.clientsMu.Lock()
	delete(nc.clients, client)
	nc.clientsMu.Unlock()
	nc.Metrics.Connections.Dec()
}

// Clients returns the currently connected gateway clients.
func (nc *NapcatConnector) Clients() []*NapcatClient {
	nc.clientsMu.RLock()
	defer nc.clientsMu.RUnlock()
	clients := make([]*NapcatClient, 0, len(nc.clients))
	for client := range nc.clients {
		clients = append(clients, client)
	}
	return clients
}

type connectionStatus struct {
	SelfID        int64         `json:"self_id"`
	RemoteAddr    string        `json:"remote_addr"`
	Alive         bool          `json:"alive"`
	LastHeartbeat jsontime.Unix `json:"last_heartbeat"`
	ConnectedAt   jsontime.Unix `json:"connected_at"`
}

type healthStatus struct {
	Status      string             `json:"status"`
	Connections []connectionStatus `json:"connections"`
}

// HandleHealthz reports the liveness of every gateway connection. It answers
// 503 when no gateway is connected or any connection has been declared dead.
func (nc *NapcatConnector) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthStatus{Status: "ok", Connections: []connectionStatus{}}
	for _, client := range nc.Clients() {
		cs := connectionStatus{
			SelfID:      client.SelfID(),
			RemoteAddr:  client.remoteAddr,
			Alive:       client.Alive(),
			ConnectedAt: jsontime.Unix{Time: client.connectedAt},
		}
		if last := client.heartbeat.LastBeat(); last.UnixNano() > 0 {
			cs.LastHeartbeat = jsontime.Unix{Time: last}
		}
		if !cs.Alive {
			resp.Status = "degraded"
		}
		resp.Connections = append(resp.Connections, cs)
	}
	if len(resp.Connections) == 0 {
		resp.Status = "disconnected"
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		nc.Log.Warn().Err(err).Msg("Failed to write health response")
	}
}
