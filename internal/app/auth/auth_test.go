package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmuni/grievance-core/internal/app/domain/identity"
)

func TestIssueThenValidateRoundTrips(t *testing.T) {
	m := NewManager("test-secret")
	dept := int64(7)
	actor := identity.Actor{UserID: 42, Role: identity.RoleDeptHead, DepartmentID: &dept}

	token, exp, err := m.Issue(actor, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 2*time.Second)

	got, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, got.UserID)
	assert.Equal(t, actor.Role, got.Role)
	require.NotNil(t, got.DepartmentID)
	assert.Equal(t, dept, *got.DepartmentID)
}

func TestIssueWithoutDepartmentLeavesItNil(t *testing.T) {
	m := NewManager("test-secret")
	actor := identity.Actor{UserID: 1, Role: identity.RoleCitizen}

	token, _, err := m.Issue(actor, time.Hour)
	require.NoError(t, err)

	got, err := m.Validate(token)
	require.NoError(t, err)
	assert.Nil(t, got.DepartmentID)
}

func TestIssueDefaultsTTLWhenNonPositive(t *testing.T) {
	m := NewManager("test-secret")
	_, exp, err := m.Issue(identity.Actor{UserID: 1, Role: identity.RoleCitizen}, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, 5*time.Second)
}

func TestIssueWithoutSecretFails(t *testing.T) {
	m := NewManager("")
	_, _, err := m.Issue(identity.Actor{UserID: 1, Role: identity.RoleCitizen}, time.Hour)
	assert.Error(t, err)
}

func TestValidateWithoutSecretFails(t *testing.T) {
	m := NewManager("")
	_, err := m.Validate("whatever")
	assert.Error(t, err)
}

func TestValidateRejectsTokenSignedWithDifferentSecret(t *testing.T) {
	issuer := NewManager("secret-a")
	token, _, err := issuer.Issue(identity.Actor{UserID: 1, Role: identity.RoleCitizen}, time.Hour)
	require.NoError(t, err)

	validator := NewManager("secret-b")
	_, err = validator.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret")
	claims := Claims{
		Subject: "1",
		Role:    string(identity.RoleCitizen),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Subject:   "1",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	require.NoError(t, err)

	_, err = m.Validate(signed)
	assert.Error(t, err)
}

func TestValidateRejectsMalformedToken(t *testing.T) {
	m := NewManager("test-secret")
	_, err := m.Validate("not-a-jwt")
	assert.Error(t, err)
}
