// Package testhelpers seeds stores and credentials for handler tests
package testhelpers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/sos-dispatch-api/databases"
	"github.com/linesmerrill/sos-dispatch-api/models"
)

// Password is the plaintext password of every seeded account
const Password = "correct-horse"

// Secret signs tokens in tests
const Secret = "test-secret"

// SeedAccount inserts an active account with Password and returns it
func SeedAccount(t *testing.T, store *databases.Store, email string, role models.Role) models.Account {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	account := models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Accounts.InsertOne(context.Background(), account))
	return account
}
