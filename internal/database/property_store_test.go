package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"propmatch/server/internal/models"
)

func createProperty(t *testing.T, db *gorm.DB) *models.Property {
	t.Helper()
	prop := &models.Property{
		Address:         models.UnknownAddress,
		Colonia:         models.UnknownColonia,
		City:            "Guadalajara",
		State:           "Jalisco",
		PropertyType:    models.PropertyTypeApartment,
		ListingsCount:   1,
		ConfidenceScore: models.InitialConfidence,
		Status:          models.PropertyStatusActive,
	}
	require.NoError(t, db.Create(prop).Error)
	return prop
}

func TestPropertyGetAndCount(t *testing.T) {
	db := setupStoreDB(t)
	store := NewPropertyStore(db)

	prop := createProperty(t, db)

	got, err := store.Get(prop.ID)
	require.NoError(t, err)
	assert.Equal(t, "Guadalajara", got.City)

	_, err = store.Get(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestGetForUpdateLoadsInsideTransaction(t *testing.T) {
	db := setupStoreDB(t)
	store := NewPropertyStore(db)

	prop := createProperty(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := store.GetForUpdate(tx, prop.ID)
		require.NoError(t, err)
		assert.Equal(t, prop.ID, locked.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestLinkedListingCount(t *testing.T) {
	db := setupStoreDB(t)
	store := NewPropertyStore(db)

	prop := createProperty(t, db)
	other := createProperty(t, db)

	for i, p := range []*models.Property{prop, prop, other} {
		l := &models.Listing{Source: "test", ExternalID: string(rune('a' + i)), PropertyID: &p.ID}
		require.NoError(t, db.Create(l).Error)
	}

	count, err := store.LinkedListingCount(db, prop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestConflictStoreListAndCount(t *testing.T) {
	db := setupStoreDB(t)
	store := NewConflictStore(db)

	prop := createProperty(t, db)
	resolution := "kept canonical"
	require.NoError(t, db.Create(&models.Conflict{
		PropertyID: prop.ID, ListingID: 1, Field: "bedrooms", CanonicalValue: "3", SourceValue: "2",
	}).Error)
	require.NoError(t, db.Create(&models.Conflict{
		PropertyID: prop.ID, ListingID: 2, Field: "built_size_m2", CanonicalValue: "80", SourceValue: "92",
		Resolved: true, Resolution: &resolution,
	}).Error)

	conflicts, err := store.ListForProperty(prop.ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "bedrooms", conflicts[0].Field)

	unresolved, err := store.UnresolvedCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), unresolved)
}
