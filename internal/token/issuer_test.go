package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gestiloc/gestiloc/internal/credential"
)

func newIssuerFixture(t *testing.T) (*Issuer, *credential.MemoryRepository, *time.Time) {
	t.Helper()
	repo := credential.NewMemoryRepository()
	repo.Seed(credential.Record{TenantID: "t-1", Phone: "+33611111111", IsActivated: true})
	iss, err := NewIssuer(repo, Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		Issuer:        "gestiloc-test",
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	now := time.Now().UTC()
	iss.WithNow(func() time.Time { return now })
	return iss, repo, &now
}

func TestIssueAndVerifyAccess(t *testing.T) {
	iss, repo, _ := newIssuerFixture(t)
	ctx := context.Background()

	pair, err := iss.Issue(ctx, "t-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tenantID, err := iss.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if tenantID != "t-1" {
		t.Fatalf("expected t-1, got %q", tenantID)
	}

	rec, err := repo.FindByTenant(ctx, "t-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.RefreshToken != pair.RefreshToken {
		t.Fatalf("stored refresh token does not match issued token")
	}
	if rec.RefreshTokenExpiresAt == nil {
		t.Fatalf("refresh expiry not persisted")
	}
}

func TestVerifyAccessRejections(t *testing.T) {
	iss, _, now := newIssuerFixture(t)
	pair, err := iss.Issue(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Token signed with a different key.
	otherRepo := credential.NewMemoryRepository()
	otherRepo.Seed(credential.Record{TenantID: "t-1", Phone: "+33611111111"})
	other, err := NewIssuer(otherRepo, Config{
		AccessSecret:  []byte("some-other-secret"),
		RefreshSecret: []byte("refresh-secret"),
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	foreign, err := other.Issue(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	if _, err := iss.VerifyAccess(foreign.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign signature, got %v", err)
	}

	// Malformed token.
	if _, err := iss.VerifyAccess("not.a.token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for malformed token, got %v", err)
	}

	// A refresh token is not an access token.
	if _, err := iss.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for refresh-as-access, got %v", err)
	}

	// Expired token.
	*now = now.Add(time.Hour + time.Second)
	if _, err := iss.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestRotateReplayFails(t *testing.T) {
	iss, _, _ := newIssuerFixture(t)
	ctx := context.Background()

	pair1, err := iss.Issue(ctx, "t-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	pair2, err := iss.Rotate(ctx, pair1.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if pair2.RefreshToken == pair1.RefreshToken {
		t.Fatalf("rotation returned the same refresh token")
	}

	// Replaying the superseded token must fail.
	if _, err := iss.Rotate(ctx, pair1.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for replay, got %v", err)
	}

	// The current token still works.
	if _, err := iss.Rotate(ctx, pair2.RefreshToken); err != nil {
		t.Fatalf("rotate current token: %v", err)
	}
}

func TestRotateRejectsAccessToken(t *testing.T) {
	iss, _, _ := newIssuerFixture(t)
	pair, err := iss.Issue(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.Rotate(context.Background(), pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for access-as-refresh, got %v", err)
	}
}

func TestRotateAfterNewIssueFails(t *testing.T) {
	iss, _, _ := newIssuerFixture(t)
	ctx := context.Background()

	old, err := iss.Issue(ctx, "t-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// A fresh login rotates storage; the earlier refresh token is dead.
	if _, err := iss.Issue(ctx, "t-1"); err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if _, err := iss.Rotate(ctx, old.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRotateExpiredRefresh(t *testing.T) {
	iss, _, now := newIssuerFixture(t)
	pair, err := iss.Issue(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	*now = now.Add(7*24*time.Hour + time.Second)
	if _, err := iss.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired refresh, got %v", err)
	}
}

func TestNewIssuerRequiresSecrets(t *testing.T) {
	if _, err := NewIssuer(credential.NewMemoryRepository(), Config{AccessSecret: []byte("a")}); err == nil {
		t.Fatalf("expected error for missing refresh secret")
	}
}
