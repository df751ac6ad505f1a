// Package auth exposes the mobile authentication endpoints: phone
// verification, login, biometric login, passcode change, and token refresh.
package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gestiloc/gestiloc/internal/activation"
	"github.com/gestiloc/gestiloc/internal/middleware"
	"github.com/gestiloc/gestiloc/internal/notification"
	"github.com/gestiloc/gestiloc/internal/tenant"
	"github.com/gestiloc/gestiloc/internal/token"
)

// Handler composes the activation state machine, the token issuer and the
// tenant directory behind the /auth endpoints.
type Handler struct {
	activation *activation.Service
	tokens     *token.Issuer
	tenants    tenant.Directory
	notifier   notification.Notifier
	logger     *slog.Logger
}

// NewHandler wires the auth endpoints' dependencies.
func NewHandler(act *activation.Service, tokens *token.Issuer, tenants tenant.Directory, notifier notification.Notifier, logger *slog.Logger) *Handler {
	return &Handler{activation: act, tokens: tokens, tenants: tenants, notifier: notifier, logger: logger}
}

type verifyPhoneRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// VerifyPhone issues a fresh temporary code for first-time login. The
// plaintext code in the response is a development stand-in for SMS delivery;
// the notifier carries the production path.
func (h *Handler) VerifyPhone(c *fiber.Ctx) error {
	var req verifyPhoneRequest
	if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" {
		return fiber.NewError(http.StatusBadRequest, "phoneNumber is required")
	}
	code, err := h.activation.RequestCode(c.UserContext(), req.PhoneNumber)
	if err != nil {
		return h.mapError(err)
	}

	// Delivery is out of band; a gateway failure must not fail verification.
	if h.notifier != nil {
		if err := h.notifier.Send(c.UserContext(), notification.Message{
			Kind:        notification.KindTempCode,
			Destination: req.PhoneNumber,
			Body:        code,
		}); err != nil && h.logger != nil {
			h.logger.Warn("temp code delivery failed", "phone", req.PhoneNumber, "error", err)
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true, "tempCode": code})
}

type loginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Passcode    string `json:"passcode"`
}

type sessionResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	IsActivated  bool           `json:"isActivated"`
	Tenant       tenant.Profile `json:"tenant"`
}

// Login authenticates a phone/passcode pair. Pending records validate against
// the temp code, activated records against the permanent passcode; both paths
// issue a fresh token pair, rotating out any prior refresh token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" || req.Passcode == "" {
		return fiber.NewError(http.StatusBadRequest, "phoneNumber and passcode are required")
	}
	rec, err := h.activation.Authenticate(c.UserContext(), req.PhoneNumber, req.Passcode)
	if err != nil {
		return h.mapError(err)
	}
	return h.openSession(c, rec.TenantID, rec.IsActivated)
}

type biometricLoginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// BiometricLogin opens a session without a passcode for records that opted
// in. The device performed the biometric check locally before calling.
func (h *Handler) BiometricLogin(c *fiber.Ctx) error {
	var req biometricLoginRequest
	if err := c.BodyParser(&req); err != nil || req.PhoneNumber == "" {
		return fiber.NewError(http.StatusBadRequest, "phoneNumber is required")
	}
	rec, err := h.activation.AuthenticateBiometric(c.UserContext(), req.PhoneNumber)
	if err != nil {
		return h.mapError(err)
	}
	return h.openSession(c, rec.TenantID, rec.IsActivated)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token for a new pair, invalidating the
// presented token. Stale or replayed tokens fail uniformly.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return fiber.NewError(http.StatusBadRequest, "refreshToken is required")
	}
	pair, err := h.tokens.Rotate(c.UserContext(), req.RefreshToken)
	if err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

type enableBiometricRequest struct {
	TenantID string `json:"tenantId"`
}

// EnableBiometric opts the authenticated tenant into biometric login. The
// session identity is authoritative; a contradicting body tenantId fails.
func (h *Handler) EnableBiometric(c *fiber.Ctx) error {
	var req enableBiometricRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	tenantID := middleware.TenantID(c)
	if req.TenantID != "" && req.TenantID != tenantID {
		return fiber.NewError(http.StatusUnauthorized, "tenant mismatch")
	}
	if err := h.activation.EnableBiometric(c.UserContext(), tenantID); err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

type changePasscodeRequest struct {
	CurrentPasscode string `json:"currentPasscode"`
	NewPasscode     string `json:"newPasscode"`
}

// ChangePasscode sets the permanent passcode for the authenticated tenant.
// This is the step that activates a pending record and consumes its temp
// code.
func (h *Handler) ChangePasscode(c *fiber.Ctx) error {
	var req changePasscodeRequest
	if err := c.BodyParser(&req); err != nil || len(req.NewPasscode) < 4 {
		return fiber.NewError(http.StatusBadRequest, "newPasscode must be at least 4 digits")
	}
	tenantID := middleware.TenantID(c)
	if err := h.activation.ChangePasscode(c.UserContext(), tenantID, req.CurrentPasscode, req.NewPasscode); err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}

func (h *Handler) openSession(c *fiber.Ctx, tenantID string, isActivated bool) error {
	pair, err := h.tokens.Issue(c.UserContext(), tenantID)
	if err != nil {
		return h.mapError(err)
	}
	profile, err := h.tenants.FindByID(c.UserContext(), tenantID)
	if err != nil {
		// The credential record is authoritative for identity; a missing
		// profile row only costs the display name.
		profile = tenant.Profile{ID: tenantID}
	}
	if h.logger != nil {
		h.logger.Info("session opened", "tenant_id", tenantID, "activated", isActivated)
	}
	return c.Status(http.StatusOK).JSON(sessionResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		IsActivated:  isActivated,
		Tenant:       profile,
	})
}

// mapError converts error kinds to transport status with generic messages.
// Internal detail (which hash failed, why) never reaches the client.
func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, activation.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "not found")
	case errors.Is(err, activation.ErrInvalidCredential), errors.Is(err, activation.ErrExpiredCode):
		return fiber.NewError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, token.ErrUnauthorized):
		return fiber.NewError(http.StatusUnauthorized, "invalid token")
	default:
		if h.logger != nil {
			h.logger.Error("auth operation failed", "error", err)
		}
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
