// Package api serves the JSON, CSV and Prometheus views of the monitor.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"sidelinkmon/history"
	"sidelinkmon/monitor"
	"sidelinkmon/sidelink"
	"sidelinkmon/throughput"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeebo/xxh3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// terminalViewLines is how many raw lines a role view echoes.
const terminalViewLines = 5

// RoleInfo carries the static radio parameters echoed in a role view.
type RoleInfo struct {
	Label     string
	Carrier   string
	Bandwidth string
	MCS       int
	TxPower   string
	RxGain    string
}

// Options configures a Server.
type Options struct {
	Monitor     *monitor.Monitor
	Roles       map[sidelink.Role]RoleInfo
	ServiceName string
	Now         func() time.Time
}

// Server owns the HTTP routes. It holds no engine state of its own.
type Server struct {
	monitor  *monitor.Monitor
	roles    map[sidelink.Role]RoleInfo
	service  string
	now      func() time.Time
	registry *prometheus.Registry
	mux      *http.ServeMux
}

// New wires every route onto a fresh mux and a private Prometheus registry.
func New(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	service := opts.ServiceName
	if service == "" {
		service = "Sidelink Monitor"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		monitor.NewCollector(opts.Monitor),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s := &Server{
		monitor:  opts.Monitor,
		roles:    opts.Roles,
		service:  service,
		now:      now,
		registry: reg,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/link_status", s.handleLinkStatus)
	s.mux.HandleFunc("GET /api/throughput_history", s.handleThroughputHistory)
	s.mux.HandleFunc("GET /api/signal_history", s.handleSignalHistory)
	s.mux.HandleFunc("GET /api/packet_history", s.handlePacketHistory)
	s.mux.HandleFunc("GET /api/message_flow", s.handleMessageFlow)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/export/csv", s.handleCSV)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/{role}", s.handleRole)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Purpose: Serve HTTP until ctx is cancelled.
// Key aspects: Graceful shutdown with a 5s bound; ErrServerClosed is not an
// error.
// Upstream: main.
// Downstream: http.Server.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("API: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return nil
	}
}

// RoleView is the per-role JSON document.
type RoleView struct {
	UEType         sidelink.Role            `json:"ue_type"`
	Role           string                   `json:"role"`
	Status         sidelink.Status          `json:"status"`
	Error          string                   `json:"error,omitempty"`
	Frame          int                      `json:"frame"`
	Slot           int                      `json:"slot"`
	FrameSlot      string                   `json:"frame_slot"`
	Carrier        string                   `json:"carrier"`
	Bandwidth      string                   `json:"bandwidth"`
	MCS            int                      `json:"mcs"`
	TxPower        string                   `json:"tx_power,omitempty"`
	RxGain         string                   `json:"rx_gain,omitempty"`
	Synchronized   *bool                    `json:"synchronized,omitempty"`
	PSBCH          sidelink.ChannelCounters `json:"psbch"`
	PSCCH          sidelink.ChannelCounters `json:"pscch"`
	PSSCH          sidelink.ChannelCounters `json:"pssch"`
	PSFCH          sidelink.ChannelCounters `json:"psfch"`
	Quality        sidelink.Quality         `json:"quality"`
	Throughput     throughput.Rates         `json:"throughput"`
	TerminalOutput []string                 `json:"terminal_output"`
	Timestamp      time.Time                `json:"timestamp"`
}

func (s *Server) roleView(obs monitor.Observation) RoleView {
	info := s.roles[obs.Role]
	snap := obs.Snapshot
	view := RoleView{
		UEType:         obs.Role,
		Role:           info.Label,
		Status:         snap.Status,
		Error:          snap.Error,
		Frame:          snap.Frame,
		Slot:           snap.Slot,
		FrameSlot:      strconv.Itoa(snap.Frame) + ":" + strconv.Itoa(snap.Slot),
		Carrier:        info.Carrier,
		Bandwidth:      info.Bandwidth,
		MCS:            info.MCS,
		PSBCH:          snap.PSBCH,
		PSCCH:          snap.PSCCH,
		PSSCH:          snap.PSSCH,
		PSFCH:          snap.PSFCH,
		Quality:        obs.Quality,
		Throughput:     obs.Rates,
		TerminalOutput: snap.TerminalTail(terminalViewLines),
		Timestamp:      s.now(),
	}
	if obs.Role == sidelink.RoleNearby {
		synced := snap.Synchronized()
		view.Synchronized = &synced
		view.RxGain = info.RxGain
	} else {
		view.TxPower = info.TxPower
	}
	return view
}

func (s *Server) handleRole(w http.ResponseWriter, r *http.Request) {
	role, ok := sidelink.ParseRole(r.PathValue("role"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown role %q", r.PathValue("role")))
		return
	}
	obs, err := s.monitor.Poll(role)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.roleView(obs))
}

func (s *Server) handleLinkStatus(w http.ResponseWriter, _ *http.Request) {
	views := s.monitor.PollAll()
	link := monitor.BuildLinkStatus(views[sidelink.RolePrimary], views[sidelink.RoleNearby], s.now())
	writeJSON(w, http.StatusOK, link)
}

type throughputHistory struct {
	Capacity int                                          `json:"capacity"`
	Series   map[sidelink.Role][]history.ThroughputSample `json:"series"`
}

func (s *Server) handleThroughputHistory(w http.ResponseWriter, r *http.Request) {
	out := throughputHistory{Series: make(map[sidelink.Role][]history.ThroughputSample, len(sidelink.Roles))}
	for _, role := range sidelink.Roles {
		src, err := s.monitor.Source(role)
		if err != nil {
			continue
		}
		out.Series[role] = src.ThroughputHistory()
		out.Capacity = src.HistoryCapacity()
	}
	s.writeCachedJSON(w, r, out)
}

type signalHistory struct {
	Capacity int                                      `json:"capacity"`
	Series   map[sidelink.Role][]history.SignalSample `json:"series"`
}

func (s *Server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	out := signalHistory{Series: make(map[sidelink.Role][]history.SignalSample, len(sidelink.Roles))}
	for _, role := range sidelink.Roles {
		src, err := s.monitor.Source(role)
		if err != nil {
			continue
		}
		out.Series[role] = src.SignalHistory()
		out.Capacity = src.HistoryCapacity()
	}
	s.writeCachedJSON(w, r, out)
}

type packetHistory struct {
	Capacity int                                      `json:"capacity"`
	Series   map[sidelink.Role][]history.PacketSample `json:"series"`
}

func (s *Server) handlePacketHistory(w http.ResponseWriter, r *http.Request) {
	out := packetHistory{Series: make(map[sidelink.Role][]history.PacketSample, len(sidelink.Roles))}
	for _, role := range sidelink.Roles {
		src, err := s.monitor.Source(role)
		if err != nil {
			continue
		}
		out.Series[role] = src.PacketHistory()
		out.Capacity = src.HistoryCapacity()
	}
	s.writeCachedJSON(w, r, out)
}

func (s *Server) handleMessageFlow(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": monitor.BuildMessageFlow(s.monitor.Views()),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	views := s.monitor.Views()
	now := s.now()
	primary, nearby := views[sidelink.RolePrimary], views[sidelink.RoleNearby]
	link := monitor.BuildLinkStatus(primary, nearby, now)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": monitor.BuildEvents(link, primary, nearby, now),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": s.service})
}

func (s *Server) writeCachedJSON(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("API: encode %s: %v", r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "encode failed")
		return
	}
	writeCached(w, r, "application/json", body)
}

// writeCached answers with an xxh3 ETag and honours If-None-Match.
func writeCached(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	etag := fmt.Sprintf("\"%016x\"", xxh3.Hash(body))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Printf("API: write %s: %v", r.URL.Path, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Printf("API: encode response: %v", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode failed"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
