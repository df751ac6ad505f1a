package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gestiloc/gestiloc/internal/token"
)

const tenantIDKey = "tenant_id"

// Session returns a middleware that validates the bearer access token and
// exposes the resolved tenant id to handlers. It is a pure gate: verification
// is stateless and never touches the credential store.
func Session(issuer *token.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		tenantID, err := issuer.VerifyAccess(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(tenantIDKey, tenantID)
		return c.Next()
	}
}

// TenantID returns the tenant id resolved by Session, or "" outside a
// protected route.
func TenantID(c *fiber.Ctx) string {
	id, _ := c.Locals(tenantIDKey).(string)
	return id
}
