package auth

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gestiloc/gestiloc/internal/activation"
	"github.com/gestiloc/gestiloc/internal/credential"
	"github.com/gestiloc/gestiloc/internal/logging"
	"github.com/gestiloc/gestiloc/internal/middleware"
	"github.com/gestiloc/gestiloc/internal/notification"
	"github.com/gestiloc/gestiloc/internal/passcode"
	"github.com/gestiloc/gestiloc/internal/tenant"
	"github.com/gestiloc/gestiloc/internal/token"
)

type fixture struct {
	app  *fiber.App
	repo *credential.MemoryRepository
	now  *time.Time
}

func newTestApp(t *testing.T) *fixture {
	t.Helper()
	repo := credential.NewMemoryRepository()
	dir := tenant.NewMemoryDirectory()
	now := time.Now().UTC()
	clock := func() time.Time { return now }

	repo.Seed(credential.Record{TenantID: "11111111-1111-1111-1111-111111111111", Phone: "+33611111111"})
	dir.Seed(tenant.Profile{ID: "11111111-1111-1111-1111-111111111111", FirstName: "Amina", LastName: "Diallo"})

	act := activation.NewService(repo, 15*time.Minute).WithNow(clock)
	issuer, err := token.NewIssuer(repo, token.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		Issuer:        "gestiloc-test",
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	issuer.WithNow(clock)

	logger := logging.Discard()
	h := NewHandler(act, issuer, dir, notification.NewLoggerNotifier(logger), logger)

	app := fiber.New()
	gate := middleware.Session(issuer)
	app.Post("/auth/verify-phone", h.VerifyPhone)
	app.Post("/auth/login", h.Login)
	app.Post("/auth/biometric-login", h.BiometricLogin)
	app.Post("/auth/refresh", h.Refresh)
	app.Post("/auth/enable-biometric", gate, h.EnableBiometric)
	app.Post("/auth/change-passcode", gate, h.ChangePasscode)

	return &fixture{app: app, repo: repo, now: &now}
}

func (f *fixture) post(t *testing.T, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

func TestVerifyPhoneUnknown(t *testing.T) {
	f := newTestApp(t)
	status, _ := f.post(t, "/auth/verify-phone", "", fiber.Map{"phoneNumber": "+33600000000"})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestOnboardingFlow(t *testing.T) {
	f := newTestApp(t)

	// Request a verification code.
	status, body := f.post(t, "/auth/verify-phone", "", fiber.Map{"phoneNumber": "+33611111111"})
	if status != fiber.StatusOK {
		t.Fatalf("verify-phone: expected 200, got %d", status)
	}
	code, _ := body["tempCode"].(string)
	if len(code) != passcode.CodeLength {
		t.Fatalf("expected %d digit code, got %q", passcode.CodeLength, code)
	}

	// First-time login with the temp code.
	status, body = f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33611111111", "passcode": code})
	if status != fiber.StatusOK {
		t.Fatalf("login: expected 200, got %d", status)
	}
	if activated, _ := body["isActivated"].(bool); activated {
		t.Fatalf("record must report pending state on first login")
	}
	access, _ := body["accessToken"].(string)
	tenantBody, _ := body["tenant"].(map[string]any)
	if tenantBody["firstName"] != "Amina" || tenantBody["lastName"] != "Diallo" {
		t.Fatalf("unexpected tenant payload: %v", tenantBody)
	}

	// Wrong code stays 401 without consuming the real one.
	status, _ = f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33611111111", "passcode": "000000"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("wrong code: expected 401, got %d", status)
	}
	status, _ = f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33611111111", "passcode": code})
	if status != fiber.StatusOK {
		t.Fatalf("code consumed by failed attempt: %d", status)
	}

	// Set the permanent passcode; this activates the account.
	status, _ = f.post(t, "/auth/change-passcode", access, fiber.Map{"newPasscode": "4321"})
	if status != fiber.StatusOK {
		t.Fatalf("change-passcode: expected 200, got %d", status)
	}

	// The temp code is dead, the passcode lives.
	status, _ = f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33611111111", "passcode": code})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("temp code after activation: expected 401, got %d", status)
	}
	status, body = f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33611111111", "passcode": "4321"})
	if status != fiber.StatusOK {
		t.Fatalf("passcode login: expected 200, got %d", status)
	}
	if activated, _ := body["isActivated"].(bool); !activated {
		t.Fatalf("expected activated state after passcode change")
	}
}

func TestTempCodeExpiry(t *testing.T) {
	f := newTestApp(t)

	status, body := f.post(t, "/auth/verify-phone", "", fiber.Map{"phoneNumber": "+33611111111"})
	if status != fiber.StatusOK {
		t.Fatalf("verify-phone: %d", status)
	}
	code, _ := body["tempCode"].(string)

	*f.now = f.now.Add(15*time.Minute + time.Second)
	status, _ = f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33611111111", "passcode": code})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 one second past expiry, got %d", status)
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newTestApp(t)

	_, body := f.post(t, "/auth/verify-phone", "", fiber.Map{"phoneNumber": "+33611111111"})
	code, _ := body["tempCode"].(string)
	status, body := f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33611111111", "passcode": code})
	if status != fiber.StatusOK {
		t.Fatalf("login: %d", status)
	}
	r1, _ := body["refreshToken"].(string)

	status, body = f.post(t, "/auth/refresh", "", fiber.Map{"refreshToken": r1})
	if status != fiber.StatusOK {
		t.Fatalf("rotate r1: expected 200, got %d", status)
	}
	r2, _ := body["refreshToken"].(string)
	if r2 == "" || r2 == r1 {
		t.Fatalf("rotation did not produce a new token")
	}

	// Replay of r1 fails; r2 still rotates.
	status, _ = f.post(t, "/auth/refresh", "", fiber.Map{"refreshToken": r1})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d", status)
	}
	status, _ = f.post(t, "/auth/refresh", "", fiber.Map{"refreshToken": r2})
	if status != fiber.StatusOK {
		t.Fatalf("rotate r2: expected 200, got %d", status)
	}
}

func TestChangePasscodeWrongCurrent(t *testing.T) {
	f := newTestApp(t)
	hash, err := passcode.Hash("1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	f.repo.Seed(credential.Record{
		TenantID:     "22222222-2222-2222-2222-222222222222",
		Phone:        "+33622222222",
		PasscodeHash: hash,
		IsActivated:  true,
	})

	status, body := f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33622222222", "passcode": "1234"})
	if status != fiber.StatusOK {
		t.Fatalf("login: %d", status)
	}
	access, _ := body["accessToken"].(string)

	status, _ = f.post(t, "/auth/change-passcode", access, fiber.Map{"currentPasscode": "9999", "newPasscode": "5678"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current passcode, got %d", status)
	}

	// Old passcode unchanged.
	status, _ = f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33622222222", "passcode": "1234"})
	if status != fiber.StatusOK {
		t.Fatalf("old passcode rejected after failed change: %d", status)
	}
}

func TestBiometricFlow(t *testing.T) {
	f := newTestApp(t)
	hash, err := passcode.Hash("1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	f.repo.Seed(credential.Record{
		TenantID:     "22222222-2222-2222-2222-222222222222",
		Phone:        "+33622222222",
		PasscodeHash: hash,
		IsActivated:  true,
	})

	// Not opted in yet.
	status, _ := f.post(t, "/auth/biometric-login", "", fiber.Map{"phoneNumber": "+33622222222"})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 before opt-in, got %d", status)
	}

	// Requires a session.
	status, _ = f.post(t, "/auth/enable-biometric", "", fiber.Map{})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", status)
	}

	_, body := f.post(t, "/auth/login", "", fiber.Map{"phoneNumber": "+33622222222", "passcode": "1234"})
	access, _ := body["accessToken"].(string)

	// Body tenantId must not contradict the session identity.
	status, _ = f.post(t, "/auth/enable-biometric", access, fiber.Map{"tenantId": "33333333-3333-3333-3333-333333333333"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for tenant mismatch, got %d", status)
	}

	status, _ = f.post(t, "/auth/enable-biometric", access, fiber.Map{"tenantId": "22222222-2222-2222-2222-222222222222"})
	if status != fiber.StatusOK {
		t.Fatalf("enable-biometric: expected 200, got %d", status)
	}

	status, body = f.post(t, "/auth/biometric-login", "", fiber.Map{"phoneNumber": "+33622222222"})
	if status != fiber.StatusOK {
		t.Fatalf("biometric-login: expected 200, got %d", status)
	}
	if body["accessToken"] == "" || body["refreshToken"] == "" {
		t.Fatalf("missing tokens in biometric login response")
	}
}
