package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
)

// ClientInfo identifies an authenticated gateway client.
type ClientInfo struct {
	Name string `json:"name"`
}

// Authenticator validates incoming gateway requests and connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against the configured token list
// using constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from the gateway token config.
// Entries with an empty token are skipped.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		a.entries = append(a.entries, authEntry{
			token: []byte(t.Token),
			info:  &ClientInfo{Name: t.Name},
		})
	}
	return a
}

// Authenticate returns client info if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// OpenAuth accepts every request. It is used when no tokens are configured
// and the gateway only listens on loopback.
type OpenAuth struct{}

// Authenticate always succeeds.
func (OpenAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

type clientKey struct{}

// ClientFromContext returns the client set by the auth middleware.
func ClientFromContext(ctx context.Context) *ClientInfo {
	c, _ := ctx.Value(clientKey{}).(*ClientInfo)
	return c
}

// requestToken reads the token from ?token=, a Bearer Authorization header
// or X-API-Key, in that order.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return t
		}
	}
	return r.Header.Get("X-API-Key")
}

// requireAuth rejects requests without a valid token with 401.
func requireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := auth.Authenticate(requestToken(r))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{
					Error: "unauthorized",
					Code:  domain.CodeGatewayAuth,
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, info)))
		})
	}
}
