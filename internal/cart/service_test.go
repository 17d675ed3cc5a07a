package cart

import (
	"context"
	"io"
	"testing"

	"github.com/angelmondragon/shopcart-backend/internal/policy"
	"github.com/angelmondragon/shopcart-backend/internal/products"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	client *db.Client
	svc    Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(
		NewRepository(client.DB()),
		products.NewRepository(client.DB()),
		client,
		policy.NewRolePolicy(),
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		opts,
	)
	require.NoError(t, err)
	return &fixture{client: client, svc: svc}
}

func (f *fixture) customer(t *testing.T) policy.Principal {
	t.Helper()
	user := dbtest.SeedUser(t, f.client, enums.UserRoleUser)
	return policy.Principal{UserID: user.ID, Role: user.Role}
}

func (f *fixture) product(t *testing.T, name, price string, stock int) models.Product {
	t.Helper()
	return dbtest.SeedProduct(t, f.client, name, price, stock)
}

func (f *fixture) activeCarts(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(&models.Cart{}).
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		Count(&n).Error)
	return n
}

func requireCode(t *testing.T, err error, code pkgerrors.Code, msg string) {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected %s, got %v", code, err)
	require.Equal(t, code, typed.Code())
	if msg != "" {
		require.Equal(t, msg, typed.Message())
	}
}

func TestAddToCartReservesStockAndMergesLines(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "12.50", 10)

	view, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 3}})
	require.NoError(t, err)
	require.Equal(t, 7, dbtest.Stock(t, f.client, lamp.ID))
	require.Len(t, view.Items, 1)
	require.Equal(t, 3, view.Items[0].Quantity)
	require.True(t, view.TotalPrice.Equal(decimal.RequireFromString("37.50")))

	view, err = f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 5, dbtest.Stock(t, f.client, lamp.ID))
	require.Len(t, view.Items, 1)
	require.Equal(t, 5, view.Items[0].Quantity)
	require.True(t, view.TotalPrice.Equal(decimal.RequireFromString("25.00")), "total covers this request only")
}

func TestAddToCartInsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 10)
	chair := f.product(t, "Chair", "40.00", 1)

	_, err := f.svc.AddToCart(ctx, user, []ItemInput{
		{ProductID: lamp.ID, Quantity: 4},
		{ProductID: chair.ID, Quantity: 2},
	})
	requireCode(t, err, pkgerrors.CodeInsufficientStock, "Insufficient stock for Chair")

	require.Equal(t, 10, dbtest.Stock(t, f.client, lamp.ID))
	require.Equal(t, 1, dbtest.Stock(t, f.client, chair.ID))
	require.Zero(t, f.activeCarts(t, user.UserID))
}

func TestAddToCartRejectsAdminsAndUnknownProducts(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	lamp := f.product(t, "Lamp", "10.00", 10)
	adminUser := dbtest.SeedUser(t, f.client, enums.UserRoleAdmin)

	_, err := f.svc.AddToCart(ctx, policy.Principal{UserID: adminUser.ID, Role: adminUser.Role}, []ItemInput{{ProductID: lamp.ID, Quantity: 1}})
	requireCode(t, err, pkgerrors.CodeForbidden, "Only users can add to cart")

	user := f.customer(t)
	_, err = f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: uuid.New(), Quantity: 1}})
	requireCode(t, err, pkgerrors.CodeNotFound, "Product not found")

	_, err = f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 0}})
	requireCode(t, err, pkgerrors.CodeValidation, "")

	require.NoError(t, products.NewRepository(f.client.DB()).SoftDelete(ctx, lamp.ID))
	_, err = f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 1}})
	requireCode(t, err, pkgerrors.CodeNotFound, "Product not found")
}

func TestViewCartComputesCurrentTotal(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)

	view, err := f.svc.ViewCart(ctx, user)
	require.NoError(t, err)
	require.True(t, view.IsEmpty())
	require.Nil(t, view.CartID)
	require.True(t, view.TotalPrice.IsZero())

	lamp := f.product(t, "Lamp", "10.00", 10)
	chair := f.product(t, "Chair", "2.25", 10)
	_, err = f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 2}, {ProductID: chair.ID, Quantity: 4}})
	require.NoError(t, err)

	require.NoError(t, f.client.DB().Model(&models.Product{}).Where("id = ?", lamp.ID).
		Update("price", decimal.RequireFromString("11.00")).Error)

	view, err = f.svc.ViewCart(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, view.CartID)
	require.Len(t, view.Items, 2)
	require.True(t, view.TotalPrice.Equal(decimal.RequireFromString("31.00")), "got %s", view.TotalPrice)
	require.True(t, view.TotalPrice.Equal(models.TotalPrice(view.Items)))
}

func TestUpdateCartItemSetsAbsoluteQuantity(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 15)

	added, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 5}})
	require.NoError(t, err)
	require.Equal(t, 10, dbtest.Stock(t, f.client, lamp.ID))

	res, err := f.svc.UpdateCartItem(ctx, user, *added.CartID, []ItemInput{{ProductID: lamp.ID, Quantity: 2}})
	require.NoError(t, err)
	require.Equal(t, 13, dbtest.Stock(t, f.client, lamp.ID))
	require.Equal(t, 2, res.CartItems[0].Quantity)
	require.True(t, res.TotalPrice.Equal(decimal.RequireFromString("20.00")))

	_, err = f.svc.UpdateCartItem(ctx, user, *added.CartID, []ItemInput{{ProductID: lamp.ID, Quantity: 16}})
	requireCode(t, err, pkgerrors.CodeInsufficientStock, "Insufficient stock for Lamp")
	require.Equal(t, 13, dbtest.Stock(t, f.client, lamp.ID))

	res, err = f.svc.UpdateCartItem(ctx, user, *added.CartID, []ItemInput{{ProductID: lamp.ID, Quantity: 15}})
	require.NoError(t, err)
	require.Zero(t, dbtest.Stock(t, f.client, lamp.ID))
	require.Equal(t, 15, res.CartItems[0].Quantity)
}

func TestUpdateCartItemEnforcesOwnershipAndState(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	owner := f.customer(t)
	other := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 15)
	chair := f.product(t, "Chair", "10.00", 15)

	added, err := f.svc.AddToCart(ctx, owner, []ItemInput{{ProductID: lamp.ID, Quantity: 1}})
	require.NoError(t, err)
	cartID := *added.CartID

	_, err = f.svc.UpdateCartItem(ctx, other, cartID, []ItemInput{{ProductID: lamp.ID, Quantity: 2}})
	requireCode(t, err, pkgerrors.CodeForbidden, "")

	_, err = f.svc.UpdateCartItem(ctx, owner, uuid.New(), []ItemInput{{ProductID: lamp.ID, Quantity: 2}})
	requireCode(t, err, pkgerrors.CodeNotFound, "No active cart found")

	_, err = f.svc.UpdateCartItem(ctx, owner, cartID, []ItemInput{{ProductID: chair.ID, Quantity: 2}})
	requireCode(t, err, pkgerrors.CodeNotFound, "Cart item not found")

	_, err = f.svc.UpdateCartItem(ctx, owner, cartID, []ItemInput{{ProductID: lamp.ID, Quantity: 2}, {ProductID: lamp.ID, Quantity: 3}})
	requireCode(t, err, pkgerrors.CodeValidation, "duplicate product_id")

	_, err = f.svc.Checkout(ctx, owner)
	require.NoError(t, err)
	_, err = f.svc.UpdateCartItem(ctx, owner, cartID, []ItemInput{{ProductID: lamp.ID, Quantity: 2}})
	requireCode(t, err, pkgerrors.CodeNotFound, "No active cart found")
}

func TestRemoveCartItemRestoresStockAndKeepsCart(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 10)
	chair := f.product(t, "Chair", "5.00", 10)

	added, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 3}, {ProductID: chair.ID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveCartItem(ctx, user, *added.CartID, []uuid.UUID{lamp.ID}))
	require.Equal(t, 10, dbtest.Stock(t, f.client, lamp.ID))
	require.Equal(t, 8, dbtest.Stock(t, f.client, chair.ID))

	view, err := f.svc.ViewCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.Equal(t, chair.ID, view.Items[0].ProductID)

	err = f.svc.RemoveCartItem(ctx, user, *added.CartID, []uuid.UUID{lamp.ID})
	requireCode(t, err, pkgerrors.CodeNotFound, "Cart item not found")
}

func TestRemoveCartItemRestoresStockOfSoftDeletedProduct(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 10)

	added, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 4}})
	require.NoError(t, err)
	require.NoError(t, products.NewRepository(f.client.DB()).SoftDelete(ctx, lamp.ID))

	view, err := f.svc.ViewCart(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, view.Items[0].Product, "soft-deleted products still preload")

	require.NoError(t, f.svc.RemoveCartItem(ctx, user, *added.CartID, []uuid.UUID{lamp.ID}))
	require.Equal(t, 10, dbtest.Stock(t, f.client, lamp.ID))
}

func TestRemoveCartItemClearsCartWhenConfigured(t *testing.T) {
	f := newFixture(t, Options{RemoveClearsCart: true})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 10)
	chair := f.product(t, "Chair", "5.00", 10)

	added, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 3}, {ProductID: chair.ID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveCartItem(ctx, user, *added.CartID, []uuid.UUID{lamp.ID}))
	require.Equal(t, 10, dbtest.Stock(t, f.client, lamp.ID))
	require.Equal(t, 10, dbtest.Stock(t, f.client, chair.ID), "remaining lines give their stock back")
	require.Zero(t, f.activeCarts(t, user.UserID))

	var items int64
	require.NoError(t, f.client.DB().Model(&models.CartItem{}).Where("cart_id = ?", *added.CartID).Count(&items).Error)
	require.Zero(t, items)
}

func TestCheckoutStartsFreshCartOnNextAdd(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 10)

	_, err := f.svc.Checkout(ctx, user)
	requireCode(t, err, pkgerrors.CodeEmptyCart, "No items in cart to checkout")

	first, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 2}})
	require.NoError(t, err)

	res, err := f.svc.Checkout(ctx, user)
	require.NoError(t, err)
	require.Equal(t, *first.CartID, res.CartID)
	require.Len(t, res.Items, 1)
	require.Equal(t, 8, dbtest.Stock(t, f.client, lamp.ID), "checkout does not touch stock")

	second, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 1}})
	require.NoError(t, err)
	require.NotEqual(t, *first.CartID, *second.CartID)
	require.Equal(t, int64(1), f.activeCarts(t, user.UserID))

	carts, err := f.svc.ViewCheckedOut(ctx, user)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	require.Equal(t, res.CartID, carts[0].ID)
	require.Len(t, carts[0].Items, 1)
	require.Equal(t, 2, carts[0].Items[0].Quantity)
	require.NotNil(t, carts[0].Items[0].Product)
}

// Stock in shelves plus stock held by active carts stays constant across any
// mix of mutations.
func TestStockIsConserved(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	user := f.customer(t)
	lamp := f.product(t, "Lamp", "10.00", 20)

	held := func() int {
		var sum int64
		require.NoError(t, f.client.DB().Model(&models.CartItem{}).
			Joins("JOIN carts ON carts.id = cart_items.cart_id").
			Where("cart_items.product_id = ? AND carts.status = ?", lamp.ID, enums.CartStatusActive).
			Select("COALESCE(SUM(cart_items.quantity), 0)").Scan(&sum).Error)
		return int(sum)
	}
	check := func() {
		t.Helper()
		require.Equal(t, 20, dbtest.Stock(t, f.client, lamp.ID)+held())
	}

	added, err := f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 6}})
	require.NoError(t, err)
	check()
	_, err = f.svc.UpdateCartItem(ctx, user, *added.CartID, []ItemInput{{ProductID: lamp.ID, Quantity: 9}})
	require.NoError(t, err)
	check()
	_, err = f.svc.AddToCart(ctx, user, []ItemInput{{ProductID: lamp.ID, Quantity: 30}})
	require.Error(t, err)
	check()
	_, err = f.svc.UpdateCartItem(ctx, user, *added.CartID, []ItemInput{{ProductID: lamp.ID, Quantity: 1}})
	require.NoError(t, err)
	check()
	require.NoError(t, f.svc.RemoveCartItem(ctx, user, *added.CartID, []uuid.UUID{lamp.ID}))
	check()
}
