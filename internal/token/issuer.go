// Package token mints and verifies the signed access/refresh token pair used
// by the mobile client, and owns refresh-token rotation against the
// credential store.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gestiloc/gestiloc/internal/credential"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour

	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrUnauthorized covers every token failure uniformly: bad signature,
// expiry, malformed input, wrong token use, or a superseded refresh token.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the signed payload carried by both token kinds. Use discriminates
// access from refresh so one can never stand in for the other.
type Claims struct {
	TenantID string `json:"tid"`
	Use      string `json:"use"`
	jwt.RegisteredClaims
}

// Config is the signing context handed to NewIssuer at startup. Secrets are
// distinct per token kind, mirroring their different lifetimes.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Pair is a freshly minted access/refresh token couple.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer signs and verifies tokens and persists refresh-token state for
// rotation. Access-token verification is stateless.
type Issuer struct {
	repo credential.Repository
	cfg  Config
	now  func() time.Time
}

// NewIssuer validates the signing context and returns a ready Issuer.
func NewIssuer(repo credential.Repository, cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	return &Issuer{repo: repo, cfg: cfg, now: time.Now}, nil
}

// WithNow overrides the clock, used by expiry tests.
func (i *Issuer) WithNow(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue mints a new pair for the tenant and stores the refresh token,
// overwriting any previous one. Each issue invalidates prior refresh tokens.
func (i *Issuer) Issue(ctx context.Context, tenantID string) (Pair, error) {
	pair, err := i.mint(tenantID)
	if err != nil {
		return Pair{}, err
	}
	exp := pair.RefreshExpiresAt
	if err := i.repo.Update(ctx, tenantID, credential.Update{
		RefreshToken:          &pair.RefreshToken,
		RefreshTokenExpiresAt: &exp,
	}); err != nil {
		return Pair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return pair, nil
}

// VerifyAccess checks signature and expiry of an access token and returns the
// tenant id. It never consults the store.
func (i *Issuer) VerifyAccess(tokenStr string) (string, error) {
	claims, err := i.parse(tokenStr, i.cfg.AccessSecret, useAccess)
	if err != nil {
		return "", err
	}
	return claims.TenantID, nil
}

// Rotate exchanges a presented refresh token for a fresh pair. The presented
// token must verify and still be the one stored for the tenant; replaying a
// superseded token fails even when two rotations race.
func (i *Issuer) Rotate(ctx context.Context, presented string) (Pair, error) {
	claims, err := i.parse(presented, i.cfg.RefreshSecret, useRefresh)
	if err != nil {
		return Pair{}, err
	}

	rec, err := i.repo.FindByTenant(ctx, claims.TenantID)
	if err != nil {
		return Pair{}, ErrUnauthorized
	}
	if rec.RefreshToken != presented {
		return Pair{}, ErrUnauthorized
	}
	if rec.RefreshTokenExpiresAt == nil || !rec.RefreshTokenExpiresAt.After(i.now()) {
		return Pair{}, ErrUnauthorized
	}

	pair, err := i.mint(claims.TenantID)
	if err != nil {
		return Pair{}, err
	}
	err = i.repo.SwapRefreshToken(ctx, claims.TenantID, presented, pair.RefreshToken, pair.RefreshExpiresAt)
	if err != nil {
		// The swap is the arbiter under concurrency: losing it means another
		// rotation already stored a newer token.
		if errors.Is(err, credential.ErrStaleRefreshToken) || errors.Is(err, credential.ErrNotFound) {
			return Pair{}, ErrUnauthorized
		}
		return Pair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return pair, nil
}

func (i *Issuer) mint(tenantID string) (Pair, error) {
	now := i.now()
	accessExp := now.Add(i.cfg.AccessTTL)
	refreshExp := now.Add(i.cfg.RefreshTTL)

	access, err := i.sign(tenantID, useAccess, now, accessExp)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(tenantID, useRefresh, now, refreshExp)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) sign(tenantID, use string, now, exp time.Time) (string, error) {
	claims := Claims{
		TenantID: tenantID,
		Use:      use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			Issuer:    i.cfg.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	secret := i.cfg.AccessSecret
	if use == useRefresh {
		secret = i.cfg.RefreshSecret
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", use, err)
	}
	return signed, nil
}

func (i *Issuer) parse(tokenStr string, secret []byte, use string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Use != use || claims.TenantID == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
