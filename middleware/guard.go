package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goSyncAuth "github.com/MrEthical07/goSyncAuth"
	"github.com/MrEthical07/goSyncAuth/jwt"
)

type claimsContextKey struct{}

// Verifier checks a bearer token and returns its claims.
type Verifier func(token string) (*jwt.SessionClaims, error)

// ClaimsFromContext returns the claims injected by a guard.
func ClaimsFromContext(ctx context.Context) (*jwt.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.SessionClaims)
	return claims, ok
}

// Guard admits requests whose bearer token passes verify and whose access
// type is one of allowed (any type when allowed is empty).
func Guard(verify Verifier, allowed ...jwt.AccessType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verify == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verify(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !accessAllowed(claims.AccessType, allowed) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = goSyncAuth.WithClientIP(ctx, ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireInternal admits shard-to-shard tokens only.
func RequireInternal(engine *goSyncAuth.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return Guard(nil)
	}
	return Guard(engine.ParseInternalToken, jwt.AccessInternal)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP returns the remote host of r without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func accessAllowed(got jwt.AccessType, allowed []jwt.AccessType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if got == a {
			return true
		}
	}
	return false
}
