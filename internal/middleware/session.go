package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionConfig describes the marketplace's Redis-backed session (connect-redis format).
// Sessions are created by the marketplace; this service only reads them.
type SessionConfig struct {
	CookieName string
	Prefix     string
	// Secret, when set, requires a signed "s:<id>.<sig>" cookie (express-session signing).
	Secret string
}

const (
	DefaultSessionCookie = "coursely.sid"
	DefaultSessionPrefix = "session:"
)

// SessionUser is the shape stored in session under "user".
type SessionUser struct {
	UserID   string `json:"user_id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Session loads the session user from Redis into Locals("user"). Missing or
// unreadable sessions leave the request anonymous.
func Session(rdb *redis.Client, cfg SessionConfig) fiber.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultSessionPrefix
	}
	return func(c *fiber.Ctx) error {
		c.Locals(userLocal, nil)
		sessionID, ok := parseSessionCookie(c.Cookies(cfg.CookieName), cfg.Secret)
		if !ok || rdb == nil {
			return c.Next()
		}
		b, err := rdb.Get(c.UserContext(), cfg.Prefix+sessionID).Bytes()
		if err != nil {
			if err != redis.Nil {
				log.Warn().Err(err).Msg("session lookup failed")
			}
			return c.Next()
		}
		var data map[string]interface{}
		if err := json.Unmarshal(b, &data); err != nil {
			return c.Next()
		}
		if u, ok := data["user"].(map[string]interface{}); ok {
			c.Locals(userLocal, u)
		}
		return c.Next()
	}
}

// parseSessionCookie extracts the session id. Express cookies look like "s:id" or
// "s:id.signature" and arrive URI-encoded ("s%3Aid.sig"); with a secret only a
// correctly signed cookie is accepted.
func parseSessionCookie(raw, secret string) (string, bool) {
	// encodeURIComponent never emits '+', so PathUnescape keeps a literal '+' intact.
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	if !strings.HasPrefix(raw, "s:") {
		return raw, raw != "" && secret == ""
	}
	parts := strings.SplitN(raw[2:], ".", 2)
	id := parts[0]
	if id == "" {
		return "", false
	}
	if secret == "" {
		return id, true
	}
	if len(parts) != 2 {
		return "", false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	want := base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
	return id, hmac.Equal([]byte(parts[1]), []byte(want))
}
