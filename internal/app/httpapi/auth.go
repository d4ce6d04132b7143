package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openmuni/grievance-core/internal/app/auth"
	"github.com/openmuni/grievance-core/internal/app/domain/identity"
	"github.com/openmuni/grievance-core/pkg/apperr"
	"github.com/openmuni/grievance-core/pkg/logger"
)

// Claims is the JWT payload the gateway issues and this API trusts: a caller
// identity plus role and, for department-scoped roles, the department id.
type Claims struct {
	jwt.RegisteredClaims
	UserID       int64   `json:"user_id"`
	Role         string  `json:"role"`
	DepartmentID *int64  `json:"department_id,omitempty"`
}

// requestActor is the identity.Actor extracted from a validated token,
// carried on the request context for the duration of the handler.
type requestActor struct {
	identity.Actor
	authenticated bool
}

func (a requestActor) isAdmin() bool {
	return a.Role == identity.RoleAdmin || a.Role == identity.RoleSuperAdmin
}

type ctxKey string

const ctxActorKey ctxKey = "httpapi.actor"

var publicPaths = map[string]struct{}{
	"/healthz":        {},
	"/system/version": {},
	"/intake/webhook": {},
	"/metrics":        {},
}

// JWTValidator abstracts token validation so the middleware does not depend
// on a concrete signing scheme.
type JWTValidator interface {
	Validate(token string) (*Claims, error)
}

// HMACValidator validates HS256 tokens signed with a shared secret, the same
// scheme the gateway's own validator uses.
type HMACValidator struct {
	secret []byte
}

// NewHMACValidator builds a validator from a shared secret. A blank secret
// makes every token invalid, so every request that needs an actor is
// rejected as unauthorized; nothing is logged for it.
func NewHMACValidator(secret string) *HMACValidator {
	return &HMACValidator{secret: []byte(strings.TrimSpace(secret))}
}

func (v *HMACValidator) Validate(token string) (*Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// ManagerValidator adapts internal/app/auth.Manager, the module's minimal
// local dev/test issuer, to JWTValidator. Production deployments point the
// real credential verifier's signing key at NewHMACValidator instead; this
// adapter only exists so a standalone run of the module can issue and
// validate tokens for itself end to end.
type ManagerValidator struct {
	manager *auth.Manager
}

// NewManagerValidator wraps an auth.Manager as a JWTValidator.
func NewManagerValidator(m *auth.Manager) *ManagerValidator {
	return &ManagerValidator{manager: m}
}

func (v *ManagerValidator) Validate(token string) (*Claims, error) {
	if v == nil || v.manager == nil {
		return nil, errors.New("auth manager not configured")
	}
	actor, err := v.manager.Validate(token)
	if err != nil {
		return nil, err
	}
	return &Claims{
		UserID:       actor.UserID,
		Role:         string(actor.Role),
		DepartmentID: actor.DepartmentID,
	}, nil
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// authMiddleware decodes and validates the bearer token on every request
// except the public paths, populating the request context with a
// requestActor the handlers use for role/ownership checks.
func authMiddleware(validator JWTValidator, log *logger.Logger) func(http.Handler) http.Handler {
	if validator == nil && log != nil {
		log.Warn("httpapi: no JWT validator configured; all authenticated endpoints will reject")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" || validator == nil {
				writeAppError(w, requestActor{}, apperr.New(apperr.Unauthorized, "missing or invalid bearer token"))
				return
			}
			claims, err := validator.Validate(token)
			if err != nil {
				writeAppError(w, requestActor{}, apperr.New(apperr.Unauthorized, "missing or invalid bearer token"))
				return
			}
			actor := requestActor{
				Actor: identity.Actor{
					UserID:       claims.UserID,
					Role:         identity.Role(strings.ToUpper(claims.Role)),
					DepartmentID: claims.DepartmentID,
				},
				authenticated: true,
			}
			ctx := context.WithValue(r.Context(), ctxActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// actorFromContext recovers the authenticated actor a middleware already
// validated. Handlers reached through the router always have one; it is
// only ever absent when a test calls a handler directly.
func actorFromContext(ctx context.Context) (requestActor, bool) {
	actor, ok := ctx.Value(ctxActorKey).(requestActor)
	return actor, ok
}

func formatActorID(id int64) string { return strconv.FormatInt(id, 10) }
