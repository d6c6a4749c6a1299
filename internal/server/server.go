package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/cliprec/internal/audio"
	"github.com/audiolibrelab/cliprec/internal/metrics"
	"github.com/audiolibrelab/cliprec/internal/recorder"
	"github.com/audiolibrelab/cliprec/internal/service"
	"github.com/audiolibrelab/cliprec/internal/store"
)

// Server exposes the recorder over HTTP
type Server struct {
	service  service.Service
	metrics  *metrics.Metrics
	addr     string
	upgrader websocket.Upgrader
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	State     recorder.State `json:"state"`
	HasClip   bool           `json:"has_clip"`
	LastError string         `json:"last_error,omitempty"`
}

// GenericResponse is the body of every control endpoint
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StreamEvent is one websocket frame. Exactly one of State or Notice is set.
type StreamEvent struct {
	Type   string           `json:"type"`
	State  *recorder.State  `json:"state,omitempty"`
	Notice *recorder.Notice `json:"notice,omitempty"`
}

// New creates a new web server instance. m may be nil.
func New(svc service.Service, addr string, m *metrics.Metrics) *Server {
	return &Server{
		service: svc,
		metrics: m,
		addr:    addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler with request metrics applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/record/start", s.handleStartRecording)
	mux.HandleFunc("/record/stop", s.handleStopRecording)
	mux.HandleFunc("/record/toggle", s.handleToggleRecording)
	mux.HandleFunc("/playback", s.handleGoToPlayback)
	mux.HandleFunc("/playback/toggle", s.handleTogglePlayPause)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/submit", s.handleSubmit)
	mux.HandleFunc("/clip", s.handleClip)
	mux.HandleFunc("/clip/load", s.handleLoadClip)
	mux.HandleFunc("/waveform.png", s.handleWaveform)
	mux.HandleFunc("/ws", s.handleStream)
	mux.Handle("/metrics", promhttp.HandlerFor(s.service.Registry(), promhttp.HandlerOpts{}))
	return s.instrument(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	_, port, err := net.SplitHostPort(s.addr)
	if err != nil {
		port = s.addr
	}
	slog.Info("Starting cliprec server",
		"addr", s.addr,
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	st := s.service.State()
	response := StatusResponse{
		State:     st,
		HasClip:   st.HasClip(),
		LastError: s.service.GetLastError(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "start_recording", "Recording started", s.service.StartRecording)
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "stop_recording", "Recording stopped", s.service.StopRecording)
}

func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "toggle_recording", "Recording toggled", s.service.ToggleRecording)
}

func (s *Server) handleGoToPlayback(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "go_to_playback", "Switched to playback", s.service.GoToPlayback)
}

func (s *Server) handleTogglePlayPause(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "toggle_play_pause", "Playback toggled", s.service.TogglePlayPause)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "reset", "Recorder reset", s.service.Reset)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, "submit", "Recording successfully stored!", s.service.Submit)
}

// control runs one recorder operation and answers with a GenericResponse
func (s *Server) control(w http.ResponseWriter, r *http.Request, op, message string, fn func(context.Context) error) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	if err := fn(r.Context()); err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", op)
		return
	}

	slog.Debug("Operation completed", "operation", op)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GenericResponse{Success: true, Message: message})
}

// handleClip describes the clip held by the store
func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	info, err := s.service.GetSavedClipInfo(r.Context())
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "clip_info")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(clipResponse(info))
}

// handleLoadClip makes the stored clip the current one
func (s *Server) handleLoadClip(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	info, err := s.service.LoadSaved(r.Context())
	if err != nil {
		s.sendErrorResponse(w, statusFor(err), err.Error(), "operation", "load_clip")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(clipResponse(info))
}

func clipResponse(info *service.ClipInfo) map[string]interface{} {
	return map[string]interface{}{
		"key":          info.Key,
		"content_type": info.ContentType,
		"size":         info.Size,
		"size_human":   info.SizeHuman,
		"duration":     info.Duration.String(),
		"duration_ms":  info.Duration.Milliseconds(),
		"sample_rate":  info.SampleRate,
		"channels":     info.Channels,
		"bit_depth":    info.BitDepth,
	}
}

func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.service.WriteWaveformPNG(w); err != nil {
		w.Header().Del("Cache-Control")
		s.sendErrorResponse(w, http.StatusNotImplemented, err.Error(), "operation", "waveform")
	}
}

// handleStream pushes state changes and notices over a websocket until the
// client goes away. The current state is sent first.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	states, cancelStates := s.service.Subscribe()
	defer cancelStates()
	notices, cancelNotices := s.service.SubscribeNotices()
	defer cancelNotices()

	// The read loop only exists to notice the client closing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	slog.Debug("WebSocket client connected", "remote", r.RemoteAddr)
	current := s.service.State()
	if err := conn.WriteJSON(StreamEvent{Type: "state", State: &current}); err != nil {
		return
	}

	for {
		var ev StreamEvent
		select {
		case <-gone:
			slog.Debug("WebSocket client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			ev = StreamEvent{Type: "state", State: &st}
		case n, ok := <-notices:
			if !ok {
				return
			}
			ev = StreamEvent{Type: "notice", Notice: &n}
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return
		}
	}
}

// instrument records a request counter and latency per route
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		endpoint := r.URL.Path
		if rec.status == http.StatusNotFound && !knownRoute(endpoint) {
			endpoint = "unmatched"
		}
		s.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rec.status), time.Since(start))
	})
}

var routes = map[string]bool{
	"/status": true, "/record/start": true, "/record/stop": true, "/record/toggle": true,
	"/playback": true, "/playback/toggle": true, "/reset": true, "/submit": true,
	"/clip": true, "/clip/load": true, "/waveform.png": true, "/ws": true, "/metrics": true,
}

func knownRoute(path string) bool { return routes[path] }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// statusFor maps recorder and device failures onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, recorder.ErrEmptyArtifact):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrPlaybackRejected),
		errors.Is(err, recorder.ErrRecordingAborted),
		errors.Is(err, recorder.ErrPlaybackAborted):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrPersistenceFailure):
		return http.StatusBadGateway
	case errors.Is(err, recorder.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Allow", method)
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(GenericResponse{
		Success: false,
		Error:   "Method not allowed",
	})
	return false
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	if statusCode >= http.StatusInternalServerError {
		slog.Error("Sending error response to client", logFields...)
	} else {
		slog.Warn("Sending error response to client", logFields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(GenericResponse{
		Success: false,
		Error:   errorMsg,
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
