package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/agromarket-backend/pkg/db"
	"github.com/angelmondragon/agromarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/enums"
	"github.com/angelmondragon/agromarket-backend/pkg/types"
)

func seedCart(t *testing.T, conn *gorm.DB, uid string) models.Cart {
	t.Helper()
	vendor := uuid.New()
	rice := dbtest.Product(t, conn, vendor, "Rice", 10)
	dal := dbtest.Product(t, conn, vendor, "Dal", 10)
	method := enums.DeliveryMethodStandard
	c := models.Cart{
		UID:             uid,
		Role:            enums.BuyerRoleClient,
		DeliveryMethod:  &method,
		DeliveryAddress: &types.DeliveryAddress{AddressLine1: "Road 2", City: "Dhaka"},
	}
	require.NoError(t, conn.Create(&c).Error)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []models.Product{dal, rice} {
		item := models.CartItem{
			CartID:    c.ID,
			ProductID: p.ID,
			Name:      p.Name,
			Price:     decimal.NewFromInt(10),
			Quantity:  1,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, conn.Create(&item).Error)
	}
	return c
}

func TestFindByUIDPreloadsProducts(t *testing.T) {
	conn := dbtest.Open(t)
	seeded := seedCart(t, conn, "uid-1")

	found, err := NewRepository(conn).FindByUID(context.Background(), " uid-1 ")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, found.ID)
	require.Len(t, found.Items, 2)
	assert.Equal(t, "Dal", found.Items[0].Name, "items keep insertion order")
	require.NotNil(t, found.Items[0].Product)
	assert.NotEqual(t, uuid.Nil, found.Items[0].VendorID())
	require.NotNil(t, found.DeliveryAddress)
	assert.Equal(t, "Dhaka", found.DeliveryAddress.City)
}

func TestFindByUIDMissing(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewRepository(conn).FindByUID(context.Background(), "nobody")
	assert.True(t, db.IsNotFound(err))
}

func TestCleanupRemovesCartAndItems(t *testing.T) {
	conn := dbtest.Open(t)
	seeded := seedCart(t, conn, "uid-1")

	cleanup, err := NewCleanup(NewRepository(conn))
	require.NoError(t, err)
	require.NoError(t, cleanup.Clear(context.Background(), nil, seeded.ID))

	var carts, items int64
	require.NoError(t, conn.Model(&models.Cart{}).Count(&carts).Error)
	require.NoError(t, conn.Model(&models.CartItem{}).Count(&items).Error)
	assert.Zero(t, carts)
	assert.Zero(t, items)
}
