package session

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type ctxKey struct{}

// CookieMaxAge is how long the session cookie survives. Abandoned
// applications stay resumable for this window.
const CookieMaxAge = 30 * 24 * time.Hour

// URLParam is the query parameter carrying a session id in resume links.
const URLParam = "sid"

// FromContext returns the session id resolved for this request, or ""
// when the middleware did not run.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID returns a context carrying the given session id. Used by the
// middleware and by tests that bypass it.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// WriteCookie sets the session cookie on a response.
func WriteCookie(w http.ResponseWriter, name, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware resolves the session id from the ?sid= parameter and the
// named cookie, stores it in the request context, and rewrites the
// cookie whenever resolution changed it.
func Middleware(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cookieID string
			if c, err := r.Cookie(cookieName); err == nil {
				cookieID = c.Value
			}

			res := Resolve(r.URL.Query().Get(URLParam), cookieID)
			if res.SetCookie {
				WriteCookie(w, cookieName, res.ID)
			}
			if res.Source == SourceMinted {
				zap.L().Debug("minted session id", zap.String("session_id", res.ID))
			}

			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), res.ID)))
		})
	}
}
