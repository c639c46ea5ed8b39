package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shelfmate/library_server/internal/testutil"
)

func TestUserRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db)

	found, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, created.Username, found.Username)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	_, err := repo.GetByID(context.Background(), 99999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_ExistsByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	testutil.TestUser(t, db, testutil.WithEmail("exists@example.com"))

	exists, err := repo.ExistsByEmail(context.Background(), "exists@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByEmail(context.Background(), "missing@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepository_SetPaymentCustomerID_OnlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	user := testutil.TestUser(t, db)
	ctx := context.Background()

	ok, err := repo.SetPaymentCustomerID(ctx, user.ID, "cus_first")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetPaymentCustomerID(ctx, user.ID, "cus_second")
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, found.PaymentCustomerID)
	assert.Equal(t, "cus_first", *found.PaymentCustomerID)
}

func TestItemRepository_CountItems(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewItemRepository(db)
	owner := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	testutil.TestItems(t, db, owner.ID, 7)
	testutil.TestItems(t, db, other.ID, 2)

	count, err := repo.CountItems(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	count, err = repo.CountItems(context.Background(), 424242)
	require.NoError(t, err)
	assert.Zero(t, count)
}
