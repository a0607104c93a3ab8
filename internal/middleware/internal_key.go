package middleware

import (
	"coursecert-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

const internalKeyHeader = "X-Internal-Key"

// InternalKey guards service-to-service routes. The configured value is a bcrypt
// hash; an empty hash rejects every request.
func InternalKey(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(internalKeyHeader)
		if hash == "" || key == "" {
			return response.Unauthorized(c, "Unauthorized")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}
