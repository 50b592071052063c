package gateway

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/taskweaver/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	// UserID is set when the token is bound to a single user.
	UserID string `json:"user_id,omitempty"`
}

// ResolvedAuth holds the effective gateway auth settings.
type ResolvedAuth struct {
	Mode  string
	Token string
	Users []config.UserToken
}

// ResolveAuth fills in the default mode. The token itself comes from
// config, where TASKWEAVER_GATEWAY_TOKEN has already been applied.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, Users: cfg.Users}
	if auth.Mode == "" {
		auth.Mode = "token"
	}
	return auth
}

// Authorize checks a presented bearer token against the shared token and
// every user token. All candidates are compared so timing does not reveal
// which one matched.
func Authorize(serverAuth ResolvedAuth, token string) AuthResult {
	switch serverAuth.Mode {
	case "none":
		return AuthResult{OK: true}
	case "token":
		if serverAuth.Token == "" && len(serverAuth.Users) == 0 {
			return AuthResult{Reason: "server token not configured"}
		}
		if token == "" {
			return AuthResult{Reason: "token required"}
		}
		shared := serverAuth.Token != "" && safeEqual(token, serverAuth.Token)
		user := ""
		for _, u := range serverAuth.Users {
			if u.Token != "" && safeEqual(token, u.Token) {
				user = u.ID
			}
		}
		switch {
		case user != "":
			return AuthResult{OK: true, UserID: user}
		case shared:
			return AuthResult{OK: true}
		}
		return AuthResult{Reason: "token_mismatch"}
	default:
		return AuthResult{Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// safeEqual compares in constant time, without an early return on length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authMiddleware rejects unauthenticated requests to everything but the
// health check. Clients with too many recent failures are locked out. A
// user-bound token fixes the request's user scope; asking for another
// user with it is forbidden.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || s.auth.Mode == "none" {
			next.ServeHTTP(w, r)
			return
		}

		host := clientHost(r)
		if !s.lockout.allow(host) {
			s.log.Warn().Str("remote", host).Msg("locked out after repeated auth failures")
			writeError(w, http.StatusTooManyRequests, "too_many_requests", "too many failed authentication attempts")
			return
		}

		res := Authorize(s.auth, bearerToken(r))
		if !res.OK {
			s.lockout.recordFailure(host)
			s.log.Debug().Str("remote", host).Str("reason", res.Reason).Msg("unauthorized request")
			writeError(w, http.StatusUnauthorized, "unauthorized", res.Reason)
			return
		}
		if res.UserID != "" {
			if asked := strings.TrimSpace(r.Header.Get(userHeader)); asked != "" && asked != res.UserID {
				s.log.Warn().Str("remote", host).Str("user_id", res.UserID).Str("requested", asked).Msg("token used for another user")
				writeError(w, http.StatusForbidden, "forbidden", "token is not valid for the requested user")
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), userKey, res.UserID))
		}
		next.ServeHTTP(w, r)
	})
}

const (
	lockoutWindow   = 5 * time.Minute
	lockoutMaxFails = 10
	lockoutMaxHosts = 10000
)

// authLockout counts failed auth attempts per host within a sliding window.
type authLockout struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthLockout() *authLockout {
	return &authLockout{failures: make(map[string][]time.Time), now: time.Now}
}

func (l *authLockout) recent(host string) []time.Time {
	cutoff := l.now().Add(-lockoutWindow)
	kept := l.failures[host][:0]
	for _, t := range l.failures[host] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = kept
	return kept
}

func (l *authLockout) allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(host)) < lockoutMaxFails
}

func (l *authLockout) recordFailure(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= lockoutMaxHosts {
		var oldest string
		var oldestAt time.Time
		for h, times := range l.failures {
			if len(times) > 0 && (oldest == "" || times[0].Before(oldestAt)) {
				oldest, oldestAt = h, times[0]
			}
		}
		delete(l.failures, oldest)
	}
	l.failures[host] = append(l.failures[host], l.now())
}

// clientHost is the remote IP without its port.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
