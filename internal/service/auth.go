package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSecret      = errors.New("invalid api secret")
	ErrNotAdmin           = errors.New("user is not an admin")
	ErrJWTDisabled        = errors.New("jwt secret not configured")
)

// AdminChecker reports whether a user id is allowed to administer keys.
type AdminChecker interface {
	IsAdmin(userID int64) bool
}

type JWTPrincipal struct {
	AdminID int64
}

// Actor returns the audit identity for the principal.
func (p *JWTPrincipal) Actor() string {
	return "admin:" + strconv.FormatInt(p.AdminID, 10)
}

type AuthService struct {
	apiSecret []byte
	jwtSecret []byte
	admins    AdminChecker
}

// NewAuthService creates the authenticator for the HTTP and MCP front ends.
// An empty apiSecret disables the shared-secret check on validation; an
// empty jwtSecret disables admin tokens.
func NewAuthService(apiSecret, jwtSecret string, admins AdminChecker) *AuthService {
	s := &AuthService{admins: admins}
	if apiSecret != "" {
		h := hashSecret(apiSecret)
		s.apiSecret = h[:]
	}
	if jwtSecret != "" {
		s.jwtSecret = []byte(jwtSecret)
	}
	return s
}

// SecretRequired reports whether validation callers must present the shared
// secret.
func (s *AuthService) SecretRequired() bool {
	return s.apiSecret != nil
}

// CheckSecret compares provided against the configured shared secret in
// constant time.
func (s *AuthService) CheckSecret(provided string) error {
	if s.apiSecret == nil {
		return nil
	}
	h := hashSecret(provided)
	if subtle.ConstantTimeCompare(h[:], s.apiSecret) != 1 {
		return ErrInvalidSecret
	}
	return nil
}

// ValidateJWT verifies a JWT bearer token and returns the associated admin
// identity. The admin must still be in the allowlist.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	if s.jwtSecret == nil {
		return nil, ErrJWTDisabled
	}
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !token.Valid {
		return nil, ErrInvalidCredentials
	}
	if s.admins == nil || !s.admins.IsAdmin(claims.AdminID) {
		return nil, ErrNotAdmin
	}

	return &JWTPrincipal{AdminID: claims.AdminID}, nil
}

// IssueJWT creates a signed token for an allowlisted admin.
func (s *AuthService) IssueJWT(ctx context.Context, adminID int64, ttl time.Duration) (string, error) {
	if s.jwtSecret == nil {
		return "", ErrJWTDisabled
	}
	if s.admins == nil || !s.admins.IsAdmin(adminID) {
		return "", ErrNotAdmin
	}

	now := time.Now()
	claims := jwtClaims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(adminID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

const issuer = "key"

type jwtClaims struct {
	AdminID int64 `json:"admin_id"`
	jwt.RegisteredClaims
}

func hashSecret(secret string) [sha256.Size]byte {
	return sha256.Sum256([]byte(secret))
}
