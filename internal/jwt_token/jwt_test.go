package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var holderID = id.HolderID(uuid.New())
var orgID = id.OrgID(uuid.New())
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(holderID, id.RoleOrgAdmin, orgID, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, holderID.String(), claims.Subject)
	assert.Equal(t, "org_admin", claims.Role)
	assert.Equal(t, orgID.String(), claims.OrgID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	assert.EqualError(t, err, "invalid token")
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(holderID, id.RoleEditor, orgID, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	assert.EqualError(t, err, "token has expired")
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "other-audience")
	token, err := other.GenerateAccessToken(holderID, id.RoleEditor, orgID, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func Test_ValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   holderID.String(),
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func TestAdapterBuildsCaller(t *testing.T) {
	adapter := NewJWTServiceAdapter(jwtService)

	token, err := jwtService.GenerateAccessToken(holderID, id.RoleAdmin, id.OrgID{}, expiresIn)
	require.NoError(t, err)
	caller, err := adapter.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, holderID, caller.ID)
	assert.Equal(t, id.RoleAdmin, caller.Role)
	assert.True(t, caller.OrgID.IsNil())

	_, err = ToCaller(&Claims{Role: "superuser", RegisteredClaims: jwt.RegisteredClaims{Subject: holderID.String()}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))

	_, err = ToCaller(&Claims{Role: "editor", RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"}})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}
