package sessiondedup

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/aadithya-v/sessiondedup/live"
)

// Authenticator resolves the caller of a request. ok is false for
// anonymous requests.
type Authenticator func(r *http.Request) (userID, sessionID string, ok bool)

// Touch records activity for the caller's current session: last activity
// becomes now and IP and user agent are refreshed. Missing user or session
// ids make it a no-op.
//
// For live requests it also signals open session views to refresh. A
// failed signal is logged, never returned.
func (m *Manager) Touch(ctx context.Context, req TouchRequest) error {
	if req.UserID == "" || req.SessionID == "" {
		return nil
	}

	err := m.sessions.UpdateActivity(ctx, req.SessionID, m.now().Unix(), req.Device.IP, req.Device.UserAgent)
	if err != nil {
		return err
	}

	if req.Live {
		if err := m.notifier.Notify(ctx, req.UserID, live.EventSessionUpdated); err != nil {
			m.logger.Warn("failed to signal session update",
				zap.String("user_id", req.UserID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// IsLiveRequest reports whether r carries the reactive transport marker.
func (m *Manager) IsLiveRequest(r *http.Request) bool {
	return r.Header.Get(m.config.LiveRequestHeader) != ""
}

// TouchMiddleware runs the wrapped handler first and then touches the
// caller's session in the background, so the response is never held up by
// the store. Close waits for these updates; shut the HTTP server down
// before calling it.
func (m *Manager) TouchMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			userID, sessionID, ok := auth(r)
			if !ok {
				return
			}

			req := TouchRequest{
				UserID:    userID,
				SessionID: sessionID,
				Device:    ExtractDeviceInfo(r),
				Live:      m.IsLiveRequest(r),
			}
			ctx := context.WithoutCancel(r.Context())

			m.touches.Add(1)
			go func() {
				defer m.touches.Done()
				if err := m.Touch(ctx, req); err != nil {
					m.logger.Warn("failed to touch session",
						zap.String("user_id", req.UserID),
						zap.Error(err),
					)
				}
			}()
		})
	}
}
