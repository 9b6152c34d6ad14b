package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sifen-api/internal/domain/entity"
	apphttp "github.com/jhoicas/sifen-api/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/sifen-api/pkg/jwt"
)

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testUserID    = "00000000-0000-0000-0000-000000000001"
	testCompanyID = "00000000-0000-0000-0000-000000000002"
	testIssuer    = "sifen-api-test"
	testExpMin    = 60
)

// buildTestApp: AuthMiddleware + RequireRole delante de un handler que responde el rol.
func buildTestApp(allowedRoles ...string) *fiber.App {
	app := fiber.New()
	app.Get("/protected",
		apphttp.AuthMiddleware(testJWTSecret),
		apphttp.RequireRole(allowedRoles...),
		func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"ok": true, "role": apphttp.GetRole(c)})
		},
	)
	return app
}

func tokenForRole(t *testing.T, role string) string {
	t.Helper()
	return bearer(t, testCompanyID, role)
}

func bearer(t *testing.T, companyID, role string) string {
	t.Helper()
	tok, err := pkgjwt.Generate(testJWTSecret, testUserID, companyID, role, testIssuer, testExpMin)
	require.NoError(t, err)
	return "Bearer " + tok
}

func doRequest(t *testing.T, app *fiber.App, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		allowed  []string
		header   func(t *testing.T) string
		status   int
		wantCode string
	}{
		{"admin en ruta admin", []string{pkgjwt.RoleAdmin},
			func(t *testing.T) string { return tokenForRole(t, pkgjwt.RoleAdmin) }, http.StatusOK, ""},
		{"operador en ruta admin u operador", []string{pkgjwt.RoleAdmin, pkgjwt.RoleOperator},
			func(t *testing.T) string { return tokenForRole(t, pkgjwt.RoleOperator) }, http.StatusOK, ""},
		{"auditor en ruta admin", []string{pkgjwt.RoleAdmin},
			func(t *testing.T) string { return tokenForRole(t, pkgjwt.RoleAuditor) }, http.StatusForbidden, "FORBIDDEN"},
		{"auditor en ruta operador", []string{pkgjwt.RoleOperator},
			func(t *testing.T) string { return tokenForRole(t, pkgjwt.RoleAuditor) }, http.StatusForbidden, "FORBIDDEN"},
		{"token sin rol", []string{pkgjwt.RoleAdmin},
			func(t *testing.T) string { return tokenForRole(t, "") }, http.StatusUnauthorized, "MISSING_ROLE"},
		{"sin header", []string{pkgjwt.RoleAdmin},
			func(*testing.T) string { return "" }, http.StatusUnauthorized, "MISSING_TOKEN"},
		{"sin esquema Bearer", []string{pkgjwt.RoleAdmin},
			func(*testing.T) string { return "Token abc" }, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"token malformado", []string{pkgjwt.RoleAdmin},
			func(*testing.T) string { return "Bearer token.invalido.aqui" }, http.StatusUnauthorized, "INVALID_TOKEN"},
		{"token sin empresa", []string{pkgjwt.RoleAdmin},
			func(t *testing.T) string { return bearer(t, "", pkgjwt.RoleAdmin) }, http.StatusUnauthorized, "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, buildTestApp(tc.allowed...), tc.header(t))
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.wantCode != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Contains(t, string(body), tc.wantCode)
			}
		})
	}
}

func TestAuthMiddleware_ExtraeClaims(t *testing.T) {
	app := fiber.New()
	app.Get("/me", apphttp.AuthMiddleware(testJWTSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id":    apphttp.GetUserID(c),
			"company_id": apphttp.GetCompanyID(c),
			"role":       apphttp.GetRole(c),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", tokenForRole(t, pkgjwt.RoleAdmin))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testUserID, body["user_id"])
	assert.Equal(t, testCompanyID, body["company_id"])
	assert.Equal(t, pkgjwt.RoleAdmin, body["role"])
}

type issuerLookup func(ctx context.Context, businessID string) (*entity.Issuer, error)

func (f issuerLookup) GetByBusinessID(ctx context.Context, businessID string) (*entity.Issuer, error) {
	return f(ctx, businessID)
}

func TestRequireIssuer(t *testing.T) {
	cases := []struct {
		name     string
		lookup   issuerLookup
		status   int
		wantCode string
	}{
		{"configurado", func(_ context.Context, id string) (*entity.Issuer, error) {
			return &entity.Issuer{BusinessID: id}, nil
		}, http.StatusOK, ""},
		{"sin emisor", func(context.Context, string) (*entity.Issuer, error) {
			return nil, nil
		}, http.StatusForbidden, "ISSUER_NOT_CONFIGURED"},
		{"falla la base", func(context.Context, string) (*entity.Issuer, error) {
			return nil, errors.New("connection refused")
		}, http.StatusServiceUnavailable, "ISSUER_CHECK_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/protected",
				apphttp.AuthMiddleware(testJWTSecret),
				apphttp.RequireIssuer(tc.lookup),
				func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) },
			)
			resp := doRequest(t, app, tokenForRole(t, pkgjwt.RoleOperator))
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.wantCode != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Contains(t, string(body), tc.wantCode)
			}
		})
	}
}
