package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/store"
)

type staffStoreStub struct {
	mu      sync.Mutex
	staff   map[string]domain.Staff
	updates int
	err     error
}

func (s *staffStoreStub) GetStaffByUsername(_ context.Context, username string) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	staff, ok := s.staff[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &staff, nil
}

func (s *staffStoreStub) UpdateStaffPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staff := s.staff[username]
	staff.PasswordHash = passwordHash
	s.staff[username] = staff
	s.updates++
	return nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := hashPassword(password)
	require.NoError(t, err)
	return hash
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	staff := &staffStoreStub{staff: map[string]domain.Staff{
		"owner": {ID: "staff-owner", Username: "owner", Role: domain.RoleOwner, OutletID: "outlet-central", Active: true, PasswordHash: "owner123"},
	}}

	manager := NewAuthManager("test-secret", time.Hour, staff)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Owner ", Password: "owner123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, resp.Role)
	assert.Equal(t, "staff-owner", resp.StaffID)

	assert.Equal(t, 1, staff.updates)
	stored := staff.staff["owner"].PasswordHash
	assert.NotEqual(t, "owner123", stored)
	assert.True(t, strings.HasPrefix(stored, "$2"), "expected bcrypt hash, got %s", stored)

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "owner", Password: "owner123"})
	require.NoError(t, err)
	assert.Equal(t, 1, staff.updates)
}

func TestAuthManagerRejectsBadLogins(t *testing.T) {
	staff := &staffStoreStub{staff: map[string]domain.Staff{
		"cashier": {ID: "staff-cashier", Username: "cashier", Role: domain.RoleCashier, Active: true, PasswordHash: mustHash(t, "cashier123")},
		"retired": {ID: "staff-retired", Username: "retired", Role: domain.RoleCashier, Active: false, PasswordHash: mustHash(t, "retired123")},
	}}
	manager := NewAuthManager("test-secret", time.Hour, staff)
	ctx := context.Background()

	_, err := manager.Login(ctx, domain.LoginRequest{Username: "cashier", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "nobody", Password: "cashier123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "cashier", Password: "  "})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = manager.Login(ctx, domain.LoginRequest{Username: "retired", Password: "retired123"})
	assert.ErrorIs(t, err, ErrInactiveAccount)
}

func TestTokenRoundTripCarriesStaffScope(t *testing.T) {
	staff := &staffStoreStub{staff: map[string]domain.Staff{
		"manager": {ID: "staff-manager", Username: "manager", Role: domain.RoleManager, OutletID: "outlet-kemang", Active: true, PasswordHash: mustHash(t, "manager123")},
	}}
	manager := NewAuthManager("test-secret", time.Hour, staff)

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "manager", Password: "manager123"})
	require.NoError(t, err)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{StaffID: "staff-manager", Username: "manager", Role: domain.RoleManager, OutletID: "outlet-kemang"}, actor)

	other := NewAuthManager("another-secret", time.Hour, staff)
	_, err = other.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewAuthManager("test-secret", time.Hour, staff)
	expired.now = func() time.Time { return time.Now().UTC().Add(-2 * time.Hour) }
	old, err := expired.Login(context.Background(), domain.LoginRequest{Username: "manager", Password: "manager123"})
	require.NoError(t, err)
	_, err = manager.ParseToken(old.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &staffStoreStub{})
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "staff-owner", Issuer: tokenIssuer},
		Role:             domain.RoleOwner,
	})
	signed, err := token.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = manager.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthorizeReturnsApproverRole(t *testing.T) {
	staff := &staffStoreStub{staff: map[string]domain.Staff{
		"manager": {ID: "staff-manager", Username: "manager", Role: domain.RoleManager, Active: true, PasswordHash: mustHash(t, "manager123")},
	}}
	manager := NewAuthManager("test-secret", time.Hour, staff)

	approver, err := manager.Authorize(context.Background(), "manager", "manager123")
	require.NoError(t, err)
	assert.Equal(t, closing.Approver{StaffID: "staff-manager", Username: "manager", Role: domain.RoleManager}, approver)

	_, err = manager.Authorize(context.Background(), "manager", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, closing.ErrApprovalDenied)

	_, err = manager.Authorize(context.Background(), " Manager ", "manager123")
	assert.ErrorIs(t, err, closing.ErrApprovalDenied, "approver username must match exactly")

	staff.err = errors.New("connection refused")
	_, err = manager.Authorize(context.Background(), "manager", "manager123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, closing.ErrApprovalDenied)
}
