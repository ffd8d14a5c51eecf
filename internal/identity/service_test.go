package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{FirstName: "Ama", LastName: "Mensah", Email: " Ama@Example.com ", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, user.Role)
	assert.Equal(t, "ama@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.Nil(t, user.LastLogin)

	authed, err := svc.Authenticate(ctx, Credentials{Email: "AMA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	require.NotNil(t, authed.LastLogin)

	stored, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, authed.LastLogin, stored.LastLogin)
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, Registration{Email: "kofi@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Register(ctx, Registration{Email: "kofi@example.com", Password: "long-enough", Role: "root"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.Register(ctx, Registration{Email: "kofi@example.com", Password: "long-enough"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, Registration{Email: "KOFI@example.com", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestAuthenticateFailures(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, Credentials{Email: "nobody@example.com", Password: "whatever1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := svc.Register(ctx, Registration{Email: "efua@example.com", Password: "long-enough"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, Credentials{Email: user.Email, Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	mem := repo.(*memoryRepository)
	mem.mu.Lock()
	u := mem.users[user.ID]
	u.IsActive = false
	mem.users[user.ID] = u
	mem.mu.Unlock()

	_, err = svc.Authenticate(ctx, Credentials{Email: user.Email, Password: "long-enough"})
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()
	reg := Registration{FirstName: "Head", LastName: "Office", Email: "admin@example.com", Password: "bootstrap-pass", Role: RoleAdmin}

	first, err := svc.EnsureUser(ctx, reg)
	require.NoError(t, err)
	second, err := svc.EnsureUser(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, IsStaff(second.Role))
}

func TestRevokeTokensBumpsVersion(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()
	user, err := svc.Register(ctx, Registration{Email: "yaw@example.com", Password: "long-enough"})
	require.NoError(t, err)

	v, err := svc.RevokeTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = svc.RevokeTokens(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestIsStaff(t *testing.T) {
	assert.False(t, IsStaff(RoleCustomer))
	assert.True(t, IsStaff(RoleLoanOfficer))
	assert.True(t, IsStaff(RoleAdmin))
	assert.False(t, IsStaff(""))
}
