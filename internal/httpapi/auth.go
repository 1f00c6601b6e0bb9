package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// StaffStore is the slice of the repository the auth manager needs.
type StaffStore interface {
	GetStaffByUsername(ctx context.Context, username string) (*domain.Staff, error)
	UpdateStaffPassword(ctx context.Context, username string, passwordHash string) error
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	staff    StaffStore
	now      func() time.Time
}

type staffClaims struct {
	jwtlib.RegisteredClaims
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	OutletID string      `json:"outlet_id"`
}

const tokenIssuer = "outletpos"

func NewAuthManager(secret string, tokenTTL time.Duration, staff StaffStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		staff:    staff,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	staff, err := a.verify(ctx, strings.ToLower(strings.TrimSpace(req.Username)), req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(staff, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        staff.Role,
		StaffID:     staff.ID,
		OutletID:    staff.OutletID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// Authorize checks a second staff member's credentials for a closing
// approval. Unlike Login the username must match exactly. The caller decides
// whether the returned role may approve.
func (a *AuthManager) Authorize(ctx context.Context, username, password string) (closing.Approver, error) {
	staff, err := a.verify(ctx, username, password)
	if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveAccount) {
		return closing.Approver{}, fmt.Errorf("%w: %w", closing.ErrApprovalDenied, err)
	}
	if err != nil {
		return closing.Approver{}, err
	}
	return closing.Approver{StaffID: staff.ID, Username: staff.Username, Role: staff.Role}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &staffClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{StaffID: sub, Username: claims.Username, Role: claims.Role, OutletID: claims.OutletID}, nil
}

func (a *AuthManager) sign(staff *domain.Staff, expiresAt time.Time) (string, error) {
	claims := staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   staff.ID,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Username: staff.Username,
		Role:     staff.Role,
		OutletID: staff.OutletID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// verify looks the account up by its exact username and checks the
// password. Legacy plain-text passwords are accepted once and replaced by a
// bcrypt hash.
func (a *AuthManager) verify(ctx context.Context, username, password string) (*domain.Staff, error) {
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	staff, err := a.staff.GetStaffByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if staff.Username != username {
		return nil, ErrInvalidCredentials
	}

	if isPasswordHash(staff.PasswordHash) {
		if bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidCredentials
		}
	} else {
		if staff.PasswordHash == "" || staff.PasswordHash != password {
			return nil, ErrInvalidCredentials
		}
		if hashed, err := hashPassword(password); err == nil {
			_ = a.staff.UpdateStaffPassword(ctx, staff.Username, hashed)
		}
	}

	if !staff.Active {
		return nil, ErrInactiveAccount
	}
	return staff, nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
