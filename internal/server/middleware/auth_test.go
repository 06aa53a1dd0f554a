package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserFromClaims(t *testing.T) {
	user, ok := userFromClaims(jwt.MapClaims{"id": "42"})
	require.True(t, ok)
	assert.Equal(t, int64(42), user.UserID)
	assert.Equal(t, "user", user.Role)
	assert.Equal(t, readerPermissions, user.Permissions)
	assert.False(t, HasPermission(user, PermPeopleMerge))

	user, ok = userFromClaims(jwt.MapClaims{"id": float64(7), "role": "admin"})
	require.True(t, ok)
	assert.Equal(t, int64(7), user.UserID)
	assert.True(t, HasPermission(user, PermDocumentsDelete))

	user, ok = userFromClaims(jwt.MapClaims{"id": "3", "permissions": []any{PermPeopleMerge, 5}})
	require.True(t, ok)
	assert.Equal(t, []string{PermPeopleMerge}, user.Permissions)
	assert.False(t, HasPermission(user, PermPeopleView))

	_, ok = userFromClaims(jwt.MapClaims{"id": "abc"})
	assert.False(t, ok)
	_, ok = userFromClaims(jwt.MapClaims{})
	assert.False(t, ok)
}

func TestHasPermission_NilUser(t *testing.T) {
	assert.False(t, HasPermission(nil, PermPeopleView))
	assert.False(t, IsAdmin(nil))
}

func TestRequirePermission(t *testing.T) {
	e := echo.New()
	handler := RequirePermission(PermPeopleMerge, PermReconcileRun)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	serve := func(user *AppUser) int {
		rec := httptest.NewRecorder()
		c := &AppContext{Context: e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec), User: user}
		require.NoError(t, handler(c))
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(nil))
	assert.Equal(t, http.StatusForbidden, serve(&AppUser{UserID: 1, Role: "user", Permissions: readerPermissions}))
	assert.Equal(t, http.StatusNoContent, serve(&AppUser{UserID: 2, Role: "user", Permissions: []string{PermReconcileRun}}))
	assert.Equal(t, http.StatusNoContent, serve(&AppUser{UserID: 3, Role: RoleAdmin}))
}
