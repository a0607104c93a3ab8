package middleware

import (
	"coursecert-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// Roles allowed to administer certificates.
const (
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentUserID(c); !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}

// RequireRole allows the request only when the session role is one of roles.
// 401 without a session, 403 "User is Forbidden from performing this action" otherwise.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := sessionString(user, "role")
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return response.Error(c, "User is Forbidden from performing this action", fiber.StatusForbidden, nil)
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// CurrentUserID parses user_id of the session user.
func CurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	user := GetUser(c)
	if user == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(sessionString(user, "user_id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func sessionString(user interface{}, key string) string {
	m, ok := user.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
