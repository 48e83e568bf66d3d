package sessiondedup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aadithya-v/sessiondedup/live"
	"github.com/aadithya-v/sessiondedup/store"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// newTestManager creates a Manager on a temporary SQLite database with a
// fixed clock.
func newTestManager(t *testing.T) *Manager {
	t.Helper()

	sqliteStore, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}

	return newManagerOn(t, sqliteStore, nil)
}

func newManagerOn(t *testing.T, s store.SessionStore, notifier live.Notifier) *Manager {
	t.Helper()

	m, err := New(Config{
		SessionStore: s,
		Notifier:     notifier,
		Now:          func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Failed to create Manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func seedSessions(t *testing.T, m *Manager, sessions ...*store.Session) {
	t.Helper()
	for _, s := range sessions {
		if err := m.Store().Save(context.Background(), s); err != nil {
			t.Fatalf("Failed to save session %s: %v", s.ID, err)
		}
	}
}

func remainingIDs(t *testing.T, m *Manager, userID string) []string {
	t.Helper()
	sessions, err := m.Store().SelectAllByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func TestListDevices(t *testing.T) {
	m := newTestManager(t)
	seedSessions(t, m, scenarioSessions()...)

	views, err := m.ListDevices(context.Background(), "U", "sB")
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(views))
	}
	if views[0].SessionID != "sB" || !views[0].IsCurrent || views[0].SessionCount != 2 {
		t.Errorf("Unexpected first device %+v", views[0])
	}
	if views[1].SessionID != "sC" || views[1].SessionCount != 1 {
		t.Errorf("Unexpected second device %+v", views[1])
	}

	if _, err := m.ListDevices(context.Background(), "", "sB"); !errors.Is(err, ErrUserRequired) {
		t.Errorf("Expected ErrUserRequired, got %v", err)
	}
}

func TestTerminateDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses current session", func(t *testing.T) {
		m := newTestManager(t)
		seedSessions(t, m, scenarioSessions()...)

		groups, err := m.Snapshot(ctx, "U")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		res, err := m.TerminateDevice(ctx, groups, "sB", "sB")
		if !errors.Is(err, ErrCurrentSessionIsTarget) {
			t.Fatalf("Expected ErrCurrentSessionIsTarget, got %v", err)
		}
		if res != nil {
			t.Errorf("Expected no result, got %+v", res)
		}
		if got := remainingIDs(t, m, "U"); len(got) != 3 {
			t.Errorf("Expected nothing deleted, got %v", got)
		}
	})

	t.Run("non-canonical target is not found", func(t *testing.T) {
		m := newTestManager(t)
		seedSessions(t, m, scenarioSessions()...)

		groups, err := m.Snapshot(ctx, "U")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if _, err := m.TerminateDevice(ctx, groups, "sC", "sA"); !errors.Is(err, ErrDeviceNotFound) {
			t.Fatalf("Expected ErrDeviceNotFound, got %v", err)
		}
		if _, err := m.TerminateDevice(ctx, groups, "sC", "nope"); !errors.Is(err, ErrDeviceNotFound) {
			t.Fatalf("Expected ErrDeviceNotFound, got %v", err)
		}
		if got := remainingIDs(t, m, "U"); len(got) != 3 {
			t.Errorf("Expected nothing deleted, got %v", got)
		}
	})

	t.Run("deletes the whole group", func(t *testing.T) {
		m := newTestManager(t)
		seedSessions(t, m, scenarioSessions()...)

		groups, err := m.Snapshot(ctx, "U")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		res, err := m.TerminateDevice(ctx, groups, "sC", "sB")
		if err != nil {
			t.Fatalf("TerminateDevice: %v", err)
		}
		if res.Deleted != 2 {
			t.Errorf("Expected 2 rows deleted, got %d", res.Deleted)
		}
		if got := remainingIDs(t, m, "U"); !equalIDs(got, []string{"sC"}) {
			t.Errorf("Expected [sC] to remain, got %v", got)
		}
	})

	t.Run("stale snapshot is a no-op", func(t *testing.T) {
		m := newTestManager(t)
		seedSessions(t, m, scenarioSessions()...)

		groups, err := m.Snapshot(ctx, "U")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if _, err := m.TerminateDevice(ctx, groups, "sC", "sB"); err != nil {
			t.Fatalf("TerminateDevice: %v", err)
		}

		res, err := m.TerminateDevice(ctx, groups, "sC", "sB")
		if err != nil {
			t.Fatalf("Repeated TerminateDevice should succeed, got %v", err)
		}
		if res.Deleted != 0 {
			t.Errorf("Expected 0 rows deleted on repeat, got %d", res.Deleted)
		}
	})
}

func TestTerminateOtherDevices(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps the current device and its duplicates", func(t *testing.T) {
		m := newTestManager(t)
		seedSessions(t, m, scenarioSessions()...)
		seedSessions(t, m, &store.Session{ID: "sD", UserID: "U", IPAddress: "5.5.5.5", UserAgent: "Firefox/Linux", LastActivity: 50})

		groups, err := m.Snapshot(ctx, "U")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		res, err := m.TerminateOtherDevices(ctx, groups, "sB")
		if err != nil {
			t.Fatalf("TerminateOtherDevices: %v", err)
		}
		if res.Deleted != 2 {
			t.Errorf("Expected 2 rows deleted, got %d", res.Deleted)
		}
		if got := remainingIDs(t, m, "U"); !equalIDs(got, []string{"sB", "sA"}) {
			t.Errorf("Expected [sB sA] to remain, got %v", got)
		}
	})

	t.Run("fails safe without current session", func(t *testing.T) {
		m := newTestManager(t)
		seedSessions(t, m, scenarioSessions()...)

		groups, err := m.Snapshot(ctx, "U")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		for _, current := range []string{"sA", "ghost", ""} {
			if _, err := m.TerminateOtherDevices(ctx, groups, current); !errors.Is(err, ErrCurrentSessionNotFound) {
				t.Errorf("current=%q: expected ErrCurrentSessionNotFound, got %v", current, err)
			}
		}
		if got := remainingIDs(t, m, "U"); len(got) != 3 {
			t.Errorf("Expected nothing deleted, got %v", got)
		}
	})

	t.Run("single device deletes nothing", func(t *testing.T) {
		m := newTestManager(t)
		seedSessions(t, m, &store.Session{ID: "only", UserID: "U", IPAddress: "1.1.1.1", UserAgent: "a", LastActivity: 1})

		groups, err := m.Snapshot(ctx, "U")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		res, err := m.TerminateOtherDevices(ctx, groups, "only")
		if err != nil {
			t.Fatalf("TerminateOtherDevices: %v", err)
		}
		if res.Deleted != 0 || len(res.SessionIDs) != 0 {
			t.Errorf("Expected nothing deleted, got %+v", res)
		}
	})
}

func TestDeduplicateInPlace(t *testing.T) {
	m := newTestManager(t)
	seedSessions(t, m, scenarioSessions()...)
	ctx := context.Background()

	n, err := m.DeduplicateInPlace(ctx, "U")
	if err != nil {
		t.Fatalf("DeduplicateInPlace: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 duplicate deleted, got %d", n)
	}
	if got := remainingIDs(t, m, "U"); !equalIDs(got, []string{"sB", "sC"}) {
		t.Errorf("Expected [sB sC] to remain, got %v", got)
	}

	n, err = m.DeduplicateInPlace(ctx, "U")
	if err != nil {
		t.Fatalf("Second DeduplicateInPlace: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected second pass to delete nothing, got %d", n)
	}

	if _, err := m.DeduplicateInPlace(ctx, ""); !errors.Is(err, ErrUserRequired) {
		t.Errorf("Expected ErrUserRequired, got %v", err)
	}
}

func TestDeduplicateInPlaceWithoutTransactions(t *testing.T) {
	m := newManagerOn(t, store.NewMemorySessionStore(), nil)
	seedSessions(t, m, scenarioSessions()...)

	n, err := m.DeduplicateInPlace(context.Background(), "U")
	if err != nil {
		t.Fatalf("DeduplicateInPlace: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 duplicate deleted, got %d", n)
	}
}

func TestCleanupRetention(t *testing.T) {
	m := newTestManager(t)
	day := int64(24 * 60 * 60)
	now := testNow.Unix()

	seedSessions(t, m,
		&store.Session{ID: "eight", UserID: "U", IPAddress: "1.1.1.1", UserAgent: "a", LastActivity: now - 8*day},
		&store.Session{ID: "six", UserID: "U", IPAddress: "2.2.2.2", UserAgent: "a", LastActivity: now - 6*day},
		&store.Session{ID: "anon", LastActivity: now - 30*day},
	)

	res, err := m.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.Expired != 2 {
		t.Errorf("Expected 2 expired sessions, got %d", res.Expired)
	}
	if got := remainingIDs(t, m, "U"); !equalIDs(got, []string{"six"}) {
		t.Errorf("Expected [six] to remain, got %v", got)
	}
}

func TestCleanupDeduplicatesEveryUser(t *testing.T) {
	m := newTestManager(t)
	now := testNow.Unix()
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	for i, id := range []string{"session_0", "session_1", "session_2"} {
		seedSessions(t, m, &store.Session{ID: id, UserID: "u1", IPAddress: "192.168.1.1", UserAgent: ua, LastActivity: now - int64(i*60)})
	}
	seedSessions(t, m,
		&store.Session{ID: "desk", UserID: "u2", IPAddress: "192.168.1.1", UserAgent: ua, LastActivity: now},
		&store.Session{ID: "phone", UserID: "u2", IPAddress: "192.168.1.1", UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_0 like Mac OS X)", LastActivity: now},
	)

	res, err := m.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.Duplicates != 2 {
		t.Errorf("Expected 2 duplicates deleted, got %d", res.Duplicates)
	}
	if res.Users != 2 {
		t.Errorf("Expected 2 users processed, got %d", res.Users)
	}
	if got := remainingIDs(t, m, "u1"); !equalIDs(got, []string{"session_0"}) {
		t.Errorf("Expected the most recent session to remain, got %v", got)
	}
	if got := remainingIDs(t, m, "u2"); len(got) != 2 {
		t.Errorf("Expected different devices to be kept, got %v", got)
	}

	res, err = m.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatalf("Second Cleanup: %v", err)
	}
	if res.Expired != 0 || res.Duplicates != 0 {
		t.Errorf("Expected an idempotent second run, got %+v", res)
	}
}

// failingStore fails reads for one user.
type failingStore struct {
	*store.MemorySessionStore
	failUser string
}

var errStoreDown = errors.New("store down")

func (s *failingStore) SelectAllByUser(ctx context.Context, userID string) ([]*store.Session, error) {
	if userID == s.failUser {
		return nil, errStoreDown
	}
	return s.MemorySessionStore.SelectAllByUser(ctx, userID)
}

func TestCleanupIsolatesUserFailures(t *testing.T) {
	fs := &failingStore{MemorySessionStore: store.NewMemorySessionStore(), failUser: "bad"}
	m := newManagerOn(t, fs, nil)
	now := testNow.Unix()

	for _, userID := range []string{"bad", "good"} {
		seedSessions(t, m,
			&store.Session{ID: userID + "-1", UserID: userID, IPAddress: "1.1.1.1", UserAgent: "a", LastActivity: now},
			&store.Session{ID: userID + "-2", UserID: userID, IPAddress: "1.1.1.1", UserAgent: "a", LastActivity: now - 1},
		)
	}

	res, err := m.Cleanup(context.Background(), 7)
	if err != nil {
		t.Fatalf("Cleanup should not fail for a single user, got %v", err)
	}
	if res.Duplicates != 1 || res.Users != 1 {
		t.Errorf("Expected one user with one duplicate, got %+v", res)
	}
	if len(res.Failures) != 1 || res.Failures[0].UserID != "bad" || !errors.Is(res.Failures[0], errStoreDown) {
		t.Errorf("Expected the bad user to be recorded, got %+v", res.Failures)
	}

	// Store errors reach the caller unchanged.
	if _, err := m.DeduplicateInPlace(context.Background(), "bad"); err != errStoreDown {
		t.Errorf("Expected the store error as is, got %v", err)
	}
}

func TestCleanupCancelled(t *testing.T) {
	m := newManagerOn(t, store.NewMemorySessionStore(), nil)
	now := testNow.Unix()
	seedSessions(t, m,
		&store.Session{ID: "1", UserID: "U", IPAddress: "1.1.1.1", UserAgent: "a", LastActivity: now},
		&store.Session{ID: "2", UserID: "U", IPAddress: "1.1.1.1", UserAgent: "a", LastActivity: now - 1},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.Cleanup(ctx, 7)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if res == nil || res.Users != 0 {
		t.Errorf("Expected a partial result with no users processed, got %+v", res)
	}
}

func TestTouch(t *testing.T) {
	hub := live.NewMemoryHub()
	m := newManagerOn(t, store.NewMemorySessionStore(), hub)
	ctx := context.Background()
	seedSessions(t, m, &store.Session{ID: "s1", UserID: "U", IPAddress: "1.1.1.1", UserAgent: "old", LastActivity: 1})

	events, cancel := hub.Subscribe("U")
	defer cancel()

	err := m.Touch(ctx, TouchRequest{
		UserID:    "U",
		SessionID: "s1",
		Device:    DeviceInfo{IP: "2.2.2.2", UserAgent: "new"},
	})
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}

	sessions, _ := m.Store().SelectAllByUser(ctx, "U")
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.LastActivity != testNow.Unix() || s.IPAddress != "2.2.2.2" || s.UserAgent != "new" {
		t.Errorf("Session not touched: %+v", s)
	}

	select {
	case ev := <-events:
		t.Errorf("Non-live touch should not signal, got %+v", ev)
	default:
	}

	if err := m.Touch(ctx, TouchRequest{UserID: "U", SessionID: "s1", Live: true}); err != nil {
		t.Fatalf("Live touch: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Name != live.EventSessionUpdated {
			t.Errorf("Unexpected event %+v", ev)
		}
	default:
		t.Error("Expected a session-updated signal")
	}

	if err := m.Touch(ctx, TouchRequest{SessionID: "s1"}); err != nil {
		t.Errorf("Anonymous touch should be a no-op, got %v", err)
	}
}

func TestTouchMiddleware(t *testing.T) {
	hub := live.NewMemoryHub()
	m := newManagerOn(t, store.NewMemorySessionStore(), hub)
	seedSessions(t, m, &store.Session{ID: "s1", UserID: "U", IPAddress: "1.1.1.1", UserAgent: "old", LastActivity: 1})

	events, cancel := hub.Subscribe("U")
	defer cancel()

	auth := func(r *http.Request) (string, string, bool) {
		c, err := r.Cookie("session_id")
		if err != nil {
			return "", "", false
		}
		return r.Header.Get("X-User-ID"), c.Value, true
	}

	handled := false
	h := m.TouchMiddleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handled = true
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", uaChromeWindows)
	req.Header.Set("X-User-ID", "U")
	req.Header.Set("X-Live-Request", "1")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	m.touches.Wait()

	if !handled || rec.Code != http.StatusNoContent {
		t.Fatalf("Expected the wrapped handler to run, got %d", rec.Code)
	}

	sessions, _ := m.Store().SelectAllByUser(context.Background(), "U")
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	if sessions[0].IPAddress != "203.0.113.7" || sessions[0].UserAgent != uaChromeWindows {
		t.Errorf("Session not touched from request: %+v", sessions[0])
	}

	select {
	case <-events:
	default:
		t.Error("Expected a live signal for a marked request")
	}

	// Anonymous requests pass through untouched.
	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), anon)
	m.touches.Wait()
}

func TestNewDefaultsToSQLite(t *testing.T) {
	m, err := New(Config{DatabasePath: filepath.Join(t.TempDir(), "default.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	if _, ok := m.Store().(*store.SQLiteStore); !ok {
		t.Errorf("Expected SQLite store by default, got %T", m.Store())
	}
	if m.config.RetentionDays != 7 || m.config.CleanupConcurrency != 4 {
		t.Errorf("Defaults not applied: %+v", m.config)
	}
}

func TestCleanupZeroDaysExpiresBeforeNow(t *testing.T) {
	m := newManagerOn(t, store.NewMemorySessionStore(), nil)
	now := testNow.Unix()
	seedSessions(t, m,
		&store.Session{ID: "old", UserID: "U", IPAddress: "1.1.1.1", UserAgent: "a", LastActivity: now - 2*24*60*60},
		&store.Session{ID: "now", UserID: "U", IPAddress: "2.2.2.2", UserAgent: "a", LastActivity: now},
	)

	res, err := m.Cleanup(context.Background(), 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if res.Expired != 1 {
		t.Errorf("Expected 1 expired session, got %d", res.Expired)
	}
	if got := remainingIDs(t, m, "U"); !equalIDs(got, []string{"now"}) {
		t.Errorf("Expected [now] to remain, got %v", got)
	}

	if _, err := m.Cleanup(context.Background(), -1); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Expected ErrInvalidRetention, got %v", err)
	}
	if m.RetentionDays() != 7 {
		t.Errorf("Expected default retention of 7 days, got %d", m.RetentionDays())
	}
}

// expireFailingStore fails the bulk expiry.
type expireFailingStore struct {
	*store.MemorySessionStore
}

func (expireFailingStore) DeleteOlderThan(context.Context, int64) (int64, error) {
	return 0, errStoreDown
}

func TestCleanupReturnsStoreErrorsAsIs(t *testing.T) {
	m := newManagerOn(t, expireFailingStore{store.NewMemorySessionStore()}, nil)

	if _, err := m.Cleanup(context.Background(), 7); err != errStoreDown {
		t.Errorf("Expected the store error as is, got %v", err)
	}
}
