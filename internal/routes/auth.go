package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gestiloc/gestiloc/internal/auth"
)

// RegisterAuthRoutes wires the mobile authentication endpoints. The rate
// limiter guards the endpoints that accept guessable credentials; the session
// gate protects the ones that require an authenticated tenant.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, sessionGate fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/verify-phone", rateLimiter, h.VerifyPhone)
		group.Post("/login", rateLimiter, h.Login)
		group.Post("/biometric-login", rateLimiter, h.BiometricLogin)
	} else {
		group.Post("/verify-phone", h.VerifyPhone)
		group.Post("/login", h.Login)
		group.Post("/biometric-login", h.BiometricLogin)
	}
	group.Post("/refresh", h.Refresh)

	group.Post("/enable-biometric", sessionGate, h.EnableBiometric)
	group.Post("/change-passcode", sessionGate, h.ChangePasscode)
}
