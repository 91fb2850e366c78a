// Package feed serves the render boundary over HTTP: JSON snapshots of the
// session and the connection, a calibration trigger and a websocket stream.
package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/TheSlimvReal/posture-client/pkg/client"
	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

type postureView interface {
	Snapshot() session.Snapshot
	Calibrate() (models.Baseline, error)
}

type statusView interface {
	Status() client.Status
}

type Server struct {
	posture  postureView
	status   statusView
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStatus exposes the connection state; without it /api/peripherals answers 404
func WithStatus(v statusView) Option {
	return func(s *Server) { s.status = v }
}

func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

func New(posture postureView, opts ...Option) *Server {
	s := &Server{
		posture: posture,
		hub:     NewHub(64),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("GET /api/posture", s.handlePosture)
	s.mux.HandleFunc("GET /api/peripherals", s.handlePeripherals)
	s.mux.HandleFunc("POST /api/calibrate", s.handleCalibrate)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

// Hub is the listener to register with the session and the client
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()
	s.logger.Info("feed listening", slog.String("addr", addr))

	select {
	case err := <-errs:
		return errors.Wrap(err, "feed listen issue")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "feed shutdown issue")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("feed encode failed", slog.String("error", err.Error()))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handlePosture(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.posture.Snapshot())
}

func (s *Server) handlePeripherals(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{"no bluetooth client running"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	b, err := s.posture.Calibrate()
	var short *models.InsufficientHistoryError
	switch {
	case errors.As(err, &short):
		s.writeJSON(w, http.StatusConflict, errorBody{err.Error()})
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, errorBody{err.Error()})
	default:
		s.writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(ch)

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket closed", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				s.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
