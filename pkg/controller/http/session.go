package http

import (
	"context"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
)

const (
	sessionCookieName = "flowlens_session"
	stateCookieName   = "flowlens_oauth_state"

	sessionIssuer = "flowlens"
	sessionTTL    = 7 * 24 * time.Hour
	stateTTL      = 10 * time.Minute
)

type ctxUserIDKey struct{}

func userIDFrom(ctx context.Context) (types.UserID, bool) {
	userID, ok := ctx.Value(ctxUserIDKey{}).(types.UserID)
	return userID, ok
}

// sessionManager signs and verifies the browser session cookie
type sessionManager struct {
	secret []byte
}

func newSessionManager(secret []byte) (*sessionManager, error) {
	if len(secret) < 32 {
		return nil, goerr.New("session secret must be at least 32 bytes", goerr.V("len", len(secret)))
	}
	return &sessionManager{secret: secret}, nil
}

func (m *sessionManager) issue(userID types.UserID, now time.Time) (string, error) {
	token, err := jwt.NewBuilder().
		Issuer(sessionIssuer).
		Subject(string(userID)).
		IssuedAt(now).
		Expiration(now.Add(sessionTTL)).
		Build()
	if err != nil {
		return "", goerr.Wrap(err, "failed to build session token")
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", goerr.Wrap(err, "failed to sign session token")
	}
	return string(signed), nil
}

func (m *sessionManager) verify(raw string) (types.UserID, error) {
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, m.secret),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithValidate(true),
	)
	if err != nil {
		return "", goerr.Wrap(err, "invalid session token")
	}
	return types.UserID(token.Subject()), nil
}

func (m *sessionManager) setCookie(w http.ResponseWriter, signed string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *sessionManager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// middleware resolves the session cookie into a user ID on the request
// context, rejecting requests without a valid session
func (m *sessionManager) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		userID, err := m.verify(cookie.Value)
		if err != nil {
			http.Error(w, "invalid session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
