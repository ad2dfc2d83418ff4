package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	runDirectoryContract(t, func(t *testing.T) Directory { return NewMemoryStore() })
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.Create(ctx, CreateInput{Username: "copy", Email: "copy@example.com", FullName: "C", PasswordHash: "h"})
	require.NoError(t, err)

	a.FullName = "mutated"
	got, err := s.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", got.FullName)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Create(ctx, CreateInput{Username: "x", Email: "x@example.com", FullName: "X", PasswordHash: "h"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccount_SanitizedClearsCredentials(t *testing.T) {
	t.Parallel()

	a := Account{ID: "1", PasswordHash: "h", RefreshTokenDigest: "d", WatchHistory: []string{"v"}}
	s := a.Sanitized()
	assert.Empty(t, s.PasswordHash)
	assert.Empty(t, s.RefreshTokenDigest)
	assert.Equal(t, "h", a.PasswordHash)

	s.WatchHistory[0] = "changed"
	assert.Equal(t, "v", a.WatchHistory[0])
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "alice", NormalizeUsername("  AlIcE "))
	assert.Equal(t, "a@b.io", NormalizeEmail(" A@B.IO"))
}

type slowDirectory struct {
	*MemoryStore
}

func (s slowDirectory) GetByID(ctx context.Context, _ string) (Account, error) {
	<-ctx.Done()
	return Account{}, ctx.Err()
}

func TestWithTimeout_BoundsCalls(t *testing.T) {
	t.Parallel()

	dir := WithTimeout(slowDirectory{NewMemoryStore()}, 20*time.Millisecond)
	_, err := dir.GetByID(context.Background(), "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	if got := WithTimeout(NewMemoryStore(), 0); got == nil {
		t.Fatalf("zero timeout must return the directory unchanged")
	}
}
