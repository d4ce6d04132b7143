// Package auth models the caller identity claims the core consumes and
// provides a minimal local JWT issuer/validator so the module is runnable
// standalone in dev/test. Credential verification and token issuance are
// out of scope per the specification; this is explicitly not the identity
// system of record.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openmuni/grievance-core/internal/app/domain/identity"
)

// Claims is the JWT claim set the core reads caller identity from: subject
// (citizen or staff id), role, and department id for staff-like roles.
type Claims struct {
	Subject      string `json:"sub"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
	Municipality string `json:"municipality,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates HS256 JWTs carrying identity.Actor claims.
// It exists only so the core is runnable standalone; production deployments
// point Validate's secret at the real credential verifier's signing key.
type Manager struct {
	secret []byte
}

// NewManager builds a Manager around the given signing secret. A Manager
// built with an empty secret cannot be used: both Issue and Validate return
// an error.
func NewManager(secret string) *Manager {
	return &Manager{secret: []byte(strings.TrimSpace(secret))}
}

// Issue signs a token for actor, valid for ttl (default 24h).
func (m *Manager) Issue(actor identity.Actor, ttl time.Duration) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, errors.New("auth: jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	exp := time.Now().Add(ttl)
	claims := Claims{
		Subject: strconv.FormatInt(actor.UserID, 10),
		Role:    string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   strconv.FormatInt(actor.UserID, 10),
		},
	}
	if actor.DepartmentID != nil {
		claims.DepartmentID = strconv.FormatInt(*actor.DepartmentID, 10)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	return signed, exp, err
}

// Validate parses tokenString and maps its claims onto an identity.Actor.
func (m *Manager) Validate(tokenString string) (identity.Actor, error) {
	if len(m.secret) == 0 {
		return identity.Actor{}, errors.New("auth: jwt secret not configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return identity.Actor{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return identity.Actor{}, errors.New("auth: invalid token")
	}
	return claims.Actor()
}

// Actor maps the JWT claim set onto the identity.Actor shape the core's
// services authorize against.
func (c *Claims) Actor() (identity.Actor, error) {
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return identity.Actor{}, fmt.Errorf("auth: invalid subject claim %q: %w", c.Subject, err)
	}
	actor := identity.Actor{UserID: userID, Role: identity.Role(c.Role)}
	if c.DepartmentID != "" {
		deptID, err := strconv.ParseInt(c.DepartmentID, 10, 64)
		if err != nil {
			return identity.Actor{}, fmt.Errorf("auth: invalid department_id claim %q: %w", c.DepartmentID, err)
		}
		actor.DepartmentID = &deptID
	}
	return actor, nil
}
