// Command example runs a small HTTP server that shows device-level session
// management: listing devices, terminating one or all others, and
// collapsing duplicates.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aadithya-v/sessiondedup"
	"github.com/aadithya-v/sessiondedup/internal/setup"
	"github.com/aadithya-v/sessiondedup/live"
	"github.com/aadithya-v/sessiondedup/store"
)

const (
	sessionCookie = "session_id"
	userCookie    = "user_id"
)

// subscribeFunc opens a stream of live events for one user.
type subscribeFunc func(ctx context.Context, userID string) (<-chan live.Event, func(), error)

type server struct {
	manager   *sessiondedup.Manager
	subscribe subscribeFunc
	logger    *zap.Logger
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "example:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := setup.Load()
	if err != nil {
		return err
	}

	logger, err := setup.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sessions, err := setup.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	// Live signals stay in process unless Redis is configured.
	var (
		notifier  live.Notifier
		subscribe subscribeFunc
	)
	redisNotifier, err := setup.OpenRedisNotifier(ctx, cfg)
	if err != nil {
		sessions.Close()
		return err
	}
	if redisNotifier != nil {
		notifier, subscribe = redisNotifier, redisSubscriber(redisNotifier)
	} else {
		hub := live.NewMemoryHub()
		notifier, subscribe = hub, hubSubscriber(hub)
	}

	m, err := sessiondedup.New(sessiondedup.Config{
		SessionStore:       sessions,
		Notifier:           notifier,
		RetentionDays:      cfg.RetentionDays,
		CleanupConcurrency: cfg.CleanupConcurrency,
		Logger:             logger,
	})
	if err != nil {
		sessions.Close()
		notifier.Close()
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(&server{manager: m, subscribe: subscribe, logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Session example server running on %s\n", cfg.HTTPAddr)
	fmt.Println("Endpoints:")
	fmt.Println("  POST /login?user_id=xxx                 - Start a session")
	fmt.Println("  GET  /sessions                          - List your devices")
	fmt.Println("  POST /sessions/{id}/terminate           - Sign out one device")
	fmt.Println("  POST /sessions/terminate-others         - Sign out every other device")
	fmt.Println("  POST /sessions/deduplicate              - Collapse duplicate sessions")
	fmt.Println("  GET  /sessions/events                   - Live session-updated events")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.Close()
		return err
	}
	return m.Close()
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.manager.TouchMiddleware(authenticate))

	r.Post("/login", s.login)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listDevices)
		r.Get("/events", s.events)
		r.Post("/terminate-others", s.terminateOthers)
		r.Post("/deduplicate", s.deduplicate)
		r.Post("/{id}/terminate", s.terminateDevice)
	})
	return r
}

// authenticate reads the caller from the demo cookies.
func authenticate(r *http.Request) (string, string, bool) {
	user, err := r.Cookie(userCookie)
	if err != nil || user.Value == "" {
		return "", "", false
	}
	session, err := r.Cookie(sessionCookie)
	if err != nil || session.Value == "" {
		return "", "", false
	}
	return user.Value, session.Value, true
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id required")
		return
	}

	device := sessiondedup.ExtractDeviceInfo(r)
	session := &store.Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		IPAddress:    device.IP,
		UserAgent:    device.UserAgent,
		LastActivity: time.Now().Unix(),
	}
	if err := s.manager.Store().Save(r.Context(), session); err != nil {
		s.fail(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: userCookie, Value: userID, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session.ID, Path: "/", HttpOnly: true})

	s.respond(w, r, userID, session.ID, http.StatusCreated, "Signed in.")
}

func (s *server) listDevices(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := authenticate(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not signed in.")
		return
	}
	s.respond(w, r, userID, sessionID, http.StatusOK, "")
}

func (s *server) terminateDevice(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := authenticate(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not signed in.")
		return
	}

	groups, err := s.manager.Snapshot(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.manager.TerminateDevice(r.Context(), groups, sessionID, chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, r, userID, sessionID, http.StatusOK, "Device signed out.")
}

func (s *server) terminateOthers(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := authenticate(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not signed in.")
		return
	}

	groups, err := s.manager.Snapshot(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.manager.TerminateOtherDevices(r.Context(), groups, sessionID); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, r, userID, sessionID, http.StatusOK, "All other devices signed out.")
}

func (s *server) deduplicate(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := authenticate(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not signed in.")
		return
	}

	n, err := s.manager.DeduplicateInPlace(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, r, userID, sessionID, http.StatusOK, fmt.Sprintf("Removed %d duplicate sessions.", n))
}

// events streams session-updated signals as server-sent events.
func (s *server) events(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authenticate(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not signed in.")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "Streaming unsupported.")
		return
	}

	events, cancel, err := s.subscribe(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: {}\n\n", ev.Name)
			flusher.Flush()
		}
	}
}

// respond writes an optional message together with the re-rendered device list.
func (s *server) respond(w http.ResponseWriter, r *http.Request, userID, sessionID string, status int, message string) {
	views, err := s.manager.ListDevices(r.Context(), userID, sessionID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, status, map[string]any{
		"message": message,
		"devices": views,
		"count":   len(views),
	})
}

// fail maps errors to user-visible messages.
func (s *server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessiondedup.ErrDeviceNotFound):
		writeMessage(w, http.StatusNotFound, "Device not found.")
	case errors.Is(err, sessiondedup.ErrCurrentSessionIsTarget):
		writeMessage(w, http.StatusBadRequest, "You cannot sign out your current device here.")
	case errors.Is(err, sessiondedup.ErrCurrentSessionNotFound):
		writeMessage(w, http.StatusConflict, "Current session not found.")
	case errors.Is(err, sessiondedup.ErrUserRequired):
		writeMessage(w, http.StatusUnauthorized, "Not signed in.")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Something went wrong.")
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func hubSubscriber(hub *live.MemoryHub) subscribeFunc {
	return func(_ context.Context, userID string) (<-chan live.Event, func(), error) {
		events, cancel := hub.Subscribe(userID)
		return events, cancel, nil
	}
}

func redisSubscriber(n *live.RedisNotifier) subscribeFunc {
	return func(ctx context.Context, userID string) (<-chan live.Event, func(), error) {
		ctx, cancel := context.WithCancel(ctx)
		events, err := n.Subscribe(ctx, userID)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		return events, cancel, nil
	}
}
