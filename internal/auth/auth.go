// Package auth verifies the HMAC-signed bearer tokens attached to
// caricashd's HTTP surface and resolves the actor identity (maker id,
// role, type) that the endpoint-binding interceptor (C10) and the
// approval workflow engine need to attribute a request to a person or
// service, grounded on the platform gateway's middleware.AuthConfig.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"caricash/internal/config"
)

type contextKey string

const actorContextKey contextKey = "caricash.actor"

// Actor is the identity and role carried by a verified bearer token.
type Actor struct {
	ID   string
	Role string
	Type string
}

// Authenticator verifies bearer tokens against a single HMAC secret and
// attaches the resolved Actor to the request context.
type Authenticator struct {
	cfg    config.AuthConfig
	logger *slog.Logger
	secret []byte
	once   sync.Once
}

// NewAuthenticator builds an Authenticator from the service's auth config.
func NewAuthenticator(cfg config.AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{cfg: cfg, logger: logger}
	a.once.Do(func() {
		a.secret = []byte(strings.TrimSpace(cfg.HMACSecret))
		if a.cfg.ClockSkew <= 0 {
			a.cfg.ClockSkew = 2 * time.Minute
		}
	})
	return a
}

// Middleware verifies the bearer token on every request when auth is
// enabled, rejecting unauthenticated or invalid requests; when disabled it
// passes every request through untouched, matching a dev/test deployment
// that terminates auth at a layer in front of caricashd.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		claims, err := a.parseToken(tokenString)
		if err != nil {
			a.logger.Warn("auth: token validation failed", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if err := a.validateClaims(claims); err != nil {
			a.logger.Warn("auth: claim validation failed", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		actor := Actor{
			ID:   stringClaim(claims, "sub"),
			Role: stringClaim(claims, "role"),
			Type: stringClaim(claims, "actor_type"),
		}
		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorFromContext resolves the (makerID, makerRole) pair intercept.Middleware
// needs, satisfying intercept.ActorResolver. An unauthenticated context (auth
// disabled, or no actor attached) yields empty strings rather than panicking.
func ActorFromContext(ctx context.Context) (string, string) {
	actor, ok := ctx.Value(actorContextKey).(Actor)
	if !ok {
		return "", ""
	}
	return actor.ID, actor.Role
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("auth: secret not configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("auth: claims not a map")
	}
	return claims, nil
}

func (a *Authenticator) validateClaims(claims jwt.MapClaims) error {
	if a.cfg.Issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != a.cfg.Issuer {
			return errors.New("auth: issuer mismatch")
		}
	}
	if a.cfg.Audience != "" {
		switch val := claims["aud"].(type) {
		case string:
			if val != a.cfg.Audience {
				return errors.New("auth: audience mismatch")
			}
		case []interface{}:
			matched := false
			for _, entry := range val {
				if s, ok := entry.(string); ok && s == a.cfg.Audience {
					matched = true
					break
				}
			}
			if !matched {
				return errors.New("auth: audience mismatch")
			}
		default:
			return errors.New("auth: audience claim missing")
		}
	}
	if exp, ok := claims["exp"].(float64); ok {
		if int64(exp) < time.Now().Unix() {
			return errors.New("auth: token expired")
		}
	}
	return nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
