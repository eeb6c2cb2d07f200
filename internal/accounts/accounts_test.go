package accounts

import (
	"context"
	"path/filepath"
	"testing"

	"issuesmap/internal/database/boltstore"
	"issuesmap/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()
	store, err := boltstore.Open(boltstore.Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewService(store)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, Registration{Login: "alice", Email: "Alice@Example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.DisplayName)
	assert.NotEqual(t, []byte("correct horse"), user.PasswordHash)

	got, err := svc.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got, err = svc.Authenticate(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong password")
	assert.Equal(t, errs.KindAuthorization, errs.KindOf(err))
	assert.Equal(t, MsgBadCredentials, errs.Message(err))

	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.Equal(t, MsgBadCredentials, errs.Message(err))
}

func TestRegister_Validation(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		reg  Registration
	}{
		{"missing login", Registration{Email: "a@example.com", Password: "12345678"}},
		{"bad login", Registration{Login: "a b", Email: "a@example.com", Password: "12345678"}},
		{"bad email", Registration{Login: "alice", Email: "nope", Password: "12345678"}},
		{"short password", Registration{Login: "alice", Email: "a@example.com", Password: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.reg)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, Registration{Login: "alice", Email: "a@example.com", Password: "12345678"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, Registration{Login: "alice", Email: "b@example.com", Password: "12345678"})
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
}

func TestEnsureUser(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()
	reg := Registration{Login: "admin", Email: "admin@example.com", Password: "bootstrap-pass"}

	first, created, err := svc.EnsureUser(ctx, reg)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := svc.EnsureUser(ctx, reg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}
