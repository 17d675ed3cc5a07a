package cart

import (
	"context"
	"testing"

	"github.com/angelmondragon/shopcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestGetOrCreateActiveReusesTheActiveCart(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	user := dbtest.SeedUser(t, client, enums.UserRoleUser)

	first, err := repo.GetOrCreateActive(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, enums.CartStatusActive, first.Status)

	again, err := repo.GetOrCreateActive(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	require.NoError(t, repo.UpdateStatus(ctx, first.ID, enums.CartStatusCheckedOut))
	next, err := repo.GetOrCreateActive(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, next.ID)

	_, err = repo.FindActive(ctx, user.ID, false)
	require.NoError(t, err)
	done, err := repo.ListByStatus(ctx, user.ID, enums.CartStatusCheckedOut)
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, first.ID, done[0].ID)
}

func TestActiveCartUniquePerUser(t *testing.T) {
	client := dbtest.Open(t)
	ctx := context.Background()
	user := dbtest.SeedUser(t, client, enums.UserRoleUser)

	require.NoError(t, client.DB().WithContext(ctx).Create(&models.Cart{UserID: user.ID, Status: enums.CartStatusActive}).Error)
	err := client.DB().WithContext(ctx).Create(&models.Cart{UserID: user.ID, Status: enums.CartStatusActive}).Error
	require.Error(t, err)

	require.NoError(t, client.DB().WithContext(ctx).Create(&models.Cart{UserID: user.ID, Status: enums.CartStatusCheckedOut}).Error)
	require.NoError(t, client.DB().WithContext(ctx).Create(&models.Cart{UserID: user.ID, Status: enums.CartStatusCheckedOut}).Error)
}

func TestItemLifecycleAndCartDelete(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	user := dbtest.SeedUser(t, client, enums.UserRoleUser)
	lamp := dbtest.SeedProduct(t, client, "Lamp", "3.00", 5)

	cart, err := repo.GetOrCreateActive(ctx, user.ID)
	require.NoError(t, err)

	item := &models.CartItem{CartID: cart.ID, ProductID: lamp.ID, Quantity: 1}
	require.NoError(t, repo.CreateItem(ctx, item))
	item.Quantity = 4
	require.NoError(t, repo.SaveItem(ctx, item))

	found, err := repo.FindItem(ctx, cart.ID, lamp.ID)
	require.NoError(t, err)
	require.Equal(t, 4, found.Quantity)

	items, err := repo.ListItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Product)
	require.Equal(t, "Lamp", items[0].Product.Name)

	require.NoError(t, repo.Delete(ctx, cart.ID))
	_, err = repo.FindByID(ctx, cart.ID, false)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.FindItem(ctx, cart.ID, lamp.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
