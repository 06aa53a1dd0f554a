package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

const RoleAdmin = "admin"

// UserFrom returns the authenticated user, or nil when the request did not
// pass AuthMiddleware.
func UserFrom(c echo.Context) *AppUser {
	if ac, ok := c.(*AppContext); ok {
		return ac.User
	}
	return nil
}

// HasPermission reports whether user holds permission. Admins hold every
// permission.
func HasPermission(user *AppUser, permission string) bool {
	switch {
	case user == nil:
		return false
	case IsAdmin(user):
		return true
	}
	return slices.Contains(user.Permissions, permission)
}

// IsAdmin reports whether user has the admin role.
func IsAdmin(user *AppUser) bool {
	return user != nil && user.Role == RoleAdmin
}

// RequirePermission admits a request whose user holds at least one of
// permissions.
func RequirePermission(permissions ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := UserFrom(c)
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			granted := slices.ContainsFunc(permissions, func(p string) bool {
				return HasPermission(user, p)
			})
			if !granted {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "Forbidden: missing permission " + strings.Join(permissions, " or "),
				})
			}
			return next(c)
		}
	}
}
