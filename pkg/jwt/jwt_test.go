package jwt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/pkg/jwt"
)

func TestGenerateParse(t *testing.T) {
	token, err := jwt.Generate("secreto", "user-1", "biz-1", jwt.RoleOperator, "sifen-api", 5)
	require.NoError(t, err)

	claims, err := jwt.Parse("secreto", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "biz-1", claims.CompanyID)
	assert.Equal(t, jwt.RoleOperator, claims.Role)
}

func TestParse_FirmaIncorrecta(t *testing.T) {
	token, err := jwt.Generate("secreto", "user-1", "biz-1", jwt.RoleAdmin, "sifen-api", 5)
	require.NoError(t, err)
	_, err = jwt.Parse("otro", token)
	assert.Error(t, err)
}

func TestParse_SinEmpresa(t *testing.T) {
	token, err := jwt.Generate("secreto", "user-1", "", jwt.RoleAdmin, "sifen-api", 5)
	require.NoError(t, err)
	_, err = jwt.Parse("secreto", token)
	assert.Error(t, err)
}

func TestParse_Expirado(t *testing.T) {
	token, err := jwt.Generate("secreto", "user-1", "biz-1", jwt.RoleAdmin, "sifen-api", -1)
	require.NoError(t, err)
	_, err = jwt.Parse("secreto", token)
	assert.Error(t, err)
}
