package database_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/partner-catalog/internal/apperr"
	"github.com/javajoker/partner-catalog/internal/database"
	"github.com/javajoker/partner-catalog/internal/database/dbtest"
	"github.com/javajoker/partner-catalog/internal/models"
)

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := dbtest.Open(t)

	err := database.WithTransaction(db, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&models.Parameter{Name: "Color"}).Error)
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")

	var count int64
	db.Model(&models.Parameter{}).Count(&count)
	assert.Zero(t, count)
}

func TestWithTransactionCommits(t *testing.T) {
	db := dbtest.Open(t)

	err := database.WithTransaction(db, func(tx *gorm.DB) error {
		return tx.Create(&models.Parameter{Name: "Color"}).Error
	})
	require.NoError(t, err)

	var count int64
	db.Model(&models.Parameter{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestUniqueConstraintsAreEnforced(t *testing.T) {
	db := dbtest.Open(t)

	require.NoError(t, db.Create(&models.Parameter{Name: "Color"}).Error)
	err := db.Create(&models.Parameter{Name: "Color"}).Error
	assert.True(t, apperr.IsUniqueViolation(err), "got %v", err)
}

func TestForeignKeysAreEnforced(t *testing.T) {
	db := dbtest.Open(t)

	err := db.Create(&models.ProductParameter{
		ProductInfoID: uuid.New(),
		ParameterID:   uuid.New(),
		Value:         "red",
	}).Error
	assert.Error(t, err)
}
