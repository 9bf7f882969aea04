package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"epdweather/internal/battery"
	"epdweather/internal/config"
	"epdweather/internal/convert"
	"epdweather/internal/epd"
	appLog "epdweather/internal/log"
	"epdweather/internal/pipeline"
)

// Pipeline is what the server needs from *pipeline.Pipeline.
type Pipeline interface {
	Status() pipeline.Status
	LastFrame() []byte
	RunOnce(ctx context.Context) (pipeline.Result, error)
	Redraw(ctx context.Context) (pipeline.Result, error)
}

// Server provides the status API of the dashboard.
type Server struct {
	cfg     *config.Config
	pipe    Pipeline
	battery battery.Reader
	mux     *http.ServeMux

	// base is the context refreshes triggered over HTTP run under; it
	// outlives the request.
	base       context.Context
	refreshing atomic.Bool
	wg         sync.WaitGroup

	// In-memory cache for battery status. This avoids hitting I2C on every
	// single HTTP call.
	batteryMu    sync.RWMutex
	batteryCache *batteryCache
}

// NewServer constructs a new Server. base bounds refreshes started through
// /api/refresh.
func NewServer(base context.Context, cfg *config.Config, pipe Pipeline, br battery.Reader) *Server {
	if br == nil {
		br = battery.None()
	}
	s := &Server{
		cfg:     cfg,
		pipe:    pipe,
		battery: br,
		mux:     http.NewServeMux(),
		base:    base,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth rather than locking
	// everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="epdweather", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully and waits for HTTP-triggered refreshes to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.HandleFunc("GET /api/battery", s.handleBattery)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.pipe.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		Status:     st,
		Refreshing: s.refreshing.Load() || st.Running,
	})
}

// handleConfig returns the running configuration. Secrets carry json:"-"
// tags and never leave the process.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

// handleBattery exposes current battery status (percent, voltage).
//
// Battery status does not need sub-second precision, so a short TTL cache
// sits in front of the I2C reads.
func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	const batteryCacheTTL = 30 * time.Second
	now := time.Now()

	// Fast path: return cached value if it's still fresh.
	s.batteryMu.RLock()
	bc := s.batteryCache
	s.batteryMu.RUnlock()
	if bc != nil && now.Sub(bc.updatedAt) < batteryCacheTTL {
		writeJSON(w, http.StatusOK, bc.status)
		return
	}

	status, err := s.battery.Read(r.Context())
	if err != nil {
		if errors.Is(err, battery.ErrUnavailable) {
			writeError(w, http.StatusNotFound, "battery monitor not configured")
			return
		}
		appLog.Error("battery read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read battery")
		return
	}

	s.batteryMu.Lock()
	s.batteryCache = &batteryCache{status: status, updatedAt: time.Now()}
	s.batteryMu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

// handleRefresh starts a refresh cycle in the background. With force=1 the
// panel is redrawn even if the forecast did not change.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.refreshing.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "refresh already pending")
		return
	}
	force := r.URL.Query().Get("force") == "1"
	run := s.pipe.RunOnce
	if force {
		run = s.pipe.Redraw
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.refreshing.Store(false)
		if _, err := run(s.base); err != nil {
			appLog.Error("HTTP-triggered refresh failed", err)
		}
	}()

	appLog.Info("refresh requested over HTTP", "force", force, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "force": force})
}

// handlePreview serves the last rendered frame as a PNG.
func (s *Server) handlePreview(w http.ResponseWriter, _ *http.Request) {
	frame := s.pipe.LastFrame()
	if frame == nil {
		writeError(w, http.StatusNotFound, "nothing rendered yet")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := convert.EncodePNG(w, frame, epd.Width, epd.Height); err != nil {
		appLog.Error("preview encode failed", err)
	}
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	pipeline.Status
	Refreshing bool `json:"refreshing"`
}

// batteryCache holds the last known battery status and its timestamp.
type batteryCache struct {
	status    battery.Status
	updatedAt time.Time
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
