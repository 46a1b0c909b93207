//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/refund"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shop"),
		postgres.WithUsername("shop"),
		postgres.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %s", err)
		}
	})

	url, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(url))

	pool, err := NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	err := NewProductRepository(pool).Upsert(context.Background(), &product.Product{
		ID:              "p1",
		Name:            "Linen Shirt",
		Title:           "Linen Shirt",
		Category:        "shirts",
		MRP:             decimal.NewFromInt(1000),
		DiscountPercent: decimal.NewFromInt(10),
		SellingPrice:    decimal.NewFromInt(900),
		Tags:            []string{"summer"},
		Sizes:           []product.Size{{Name: "M", Available: 3}, {Name: "L", Available: 0}},
	})
	require.NoError(t, err)
}

func TestIntegration_ProductList(t *testing.T) {
	pool := setupPool(t)
	seedProduct(t, pool)
	repo := NewProductRepository(pool)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"summer"}, list[0].Tags)
	assert.Equal(t, []product.Size{{Name: "L", Available: 0}, {Name: "M", Available: 3}}, list[0].Sizes)

	_, err = repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestIntegration_APIKeys(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(pool)

	_, err := repo.FindByHash(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	info := auth.APIKeyInfo{ID: "ops", KeyHash: "h1", Name: "ops", Scopes: []string{"admin"}}
	require.NoError(t, repo.Upsert(ctx, info))

	got, err := repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, info, *got)

	var used bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT last_used_at IS NOT NULL FROM api_keys WHERE id = 'ops'`).Scan(&used))
	assert.True(t, used)

	require.NoError(t, repo.Revoke(ctx, "ops"))
	_, err = repo.FindByHash(ctx, "h1")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	require.ErrorIs(t, repo.Revoke(ctx, "missing"), auth.ErrUnauthorized)
}

func TestIntegration_Cart(t *testing.T) {
	pool := setupPool(t)
	seedProduct(t, pool)
	ctx := context.Background()
	repo := NewCartRepository(pool)

	line := cart.Line{Key: cart.Key{UserID: "u1", ProductID: "p1", Size: "M"}, Quantity: 3, UnitPrice: decimal.NewFromInt(900)}
	got, err := repo.Upsert(ctx, line, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)

	got, err = repo.Upsert(ctx, cart.Line{Key: line.Key, Quantity: 2, UnitPrice: line.UnitPrice}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)

	_, err = repo.Upsert(ctx, cart.Line{Key: line.Key, Quantity: 1, UnitPrice: line.UnitPrice}, 5)
	require.ErrorIs(t, err, cart.ErrLimitExceeded)

	lines, err := repo.ListWithStock(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Stock)
	assert.True(t, lines[0].SizeExists)
	assert.False(t, cart.IsAvailable(lines[0]))

	require.NoError(t, repo.SetAvailability(ctx, []cart.AvailabilityChange{{LineID: lines[0].ID, Available: false}}))
	lines, err = repo.ListWithStock(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, lines[0].Available)

	require.ErrorIs(t, repo.SetQuantity(ctx, cart.Key{UserID: "u1", ProductID: "p1", Size: "XL"}, 1), cart.ErrLineNotFound)
	require.NoError(t, repo.Remove(ctx, line.Key))
	require.ErrorIs(t, repo.Remove(ctx, line.Key), cart.ErrLineNotFound)
}

func TestIntegration_CouponClaimIsAtomic(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewCouponRepository(pool)

	c := &coupon.Coupon{
		Code:         "LIMITED3",
		DiscountType: pricing.DiscountFlat,
		Value:        decimal.NewFromInt(100),
		UsageLimit:   3,
		Active:       true,
	}
	require.NoError(t, repo.Create(ctx, c))
	require.ErrorIs(t, repo.Create(ctx, &coupon.Coupon{Code: "limited3", DiscountType: pricing.DiscountFlat}), coupon.ErrDuplicateCode)

	_, err := repo.AddCondition(ctx, "limited3", coupon.Condition{Type: coupon.ConditionTag, Value: "summer"})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Claim(ctx, "LIMITED3"); err == nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, claimed)

	got, err := repo.FindByCode(ctx, "limited3")
	require.NoError(t, err)
	assert.Equal(t, 3, got.TimesUsed)
	assert.False(t, got.Active)
	require.Len(t, got.Conditions, 1)

	_, err = repo.Claim(ctx, "LIMITED3")
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
}

func TestIntegration_CouponUpsertMany(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewCouponRepository(pool)

	require.NoError(t, repo.Create(ctx, &coupon.Coupon{
		Code:         "FEED10",
		DiscountType: pricing.DiscountPercentage,
		Value:        decimal.NewFromInt(5),
		Active:       true,
	}))
	_, err := repo.Claim(ctx, "FEED10")
	require.NoError(t, err)

	require.NoError(t, repo.UpsertMany(ctx, []coupon.Coupon{
		{Code: "feed10", DiscountType: pricing.DiscountPercentage, Value: decimal.NewFromInt(10), UsageLimit: 50, Active: true},
		{Code: "FEED200", DiscountType: pricing.DiscountFlat, Value: decimal.NewFromInt(200), Active: true},
	}))

	got, err := repo.FindByCode(ctx, "FEED10")
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 50, got.UsageLimit)
	assert.Equal(t, 1, got.TimesUsed)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestIntegration_CheckoutUpsert(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewCheckoutRepository(pool)

	detail := func(size string) checkout.Detail {
		return checkout.Detail{
			ProductID: "p1", Size: size, Quantity: 1, Name: "Linen Shirt",
			MRP: decimal.NewFromInt(1000), ProductDiscount: decimal.NewFromInt(100), FinalPrice: decimal.NewFromInt(900),
		}
	}
	c := &checkout.Checkout{UserID: "u1", TotalPaymentAmount: decimal.NewFromInt(1800), Details: []checkout.Detail{detail("M"), detail("L")}}
	require.NoError(t, repo.Save(ctx, c))
	firstID := c.ID

	c2 := &checkout.Checkout{UserID: "u1", CouponCode: "FLAT100", TotalPaymentAmount: decimal.NewFromInt(800), Details: []checkout.Detail{detail("M")}}
	require.NoError(t, repo.Save(ctx, c2))
	assert.Equal(t, firstID, c2.ID)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "FLAT100", got.CouponCode)
	require.Len(t, got.Details, 1)
	assert.Equal(t, "M", got.Details[0].Size)

	require.NoError(t, repo.Delete(ctx, "u1"))
	_, err = repo.Get(ctx, "u1")
	require.ErrorIs(t, err, checkout.ErrNotFound)
}

func TestIntegration_OrderLifecycle(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewOrderRepository(pool)
	refunds := NewRefundRepository(pool)
	now := time.Now().UTC().Truncate(time.Second)

	line := func(pid string) order.Detail {
		return order.Detail{
			ProductID: pid, Name: pid, Size: "M", Quantity: 1, Price: decimal.NewFromInt(500),
			ProductStatus: order.StatusConfirmed,
			Status: order.LineStatus{
				OrderStatus: string(order.StatusConfirmed), OrderType: order.TypePurchase,
				EstimateDelivery: now.AddDate(0, 0, 7), Date: now,
			},
		}
	}
	o := &order.Order{
		PublicID: "01HZTESTORDER", UserID: "u1", GatewayOrderID: "order_1", Amount: decimal.NewFromInt(1000),
		DeliveryAddress: "12 Main St", DeliveryPin: "560001", RecipientName: "Asha", RecipientContact: "9999999999",
		CreatedAt: now, Details: []order.Detail{line("p1"), line("p2")},
	}
	pay := &payment.Payment{
		UserID: "u1", GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", Signature: "sig",
		Amount: o.Amount, Mode: payment.ModeOnline, Status: payment.StatusCaptured,
	}

	intent := &payment.Intent{UserID: "u1", GatewayOrderID: "order_1", Amount: o.Amount, Currency: "INR", Receipt: "receipt_u1"}
	require.NoError(t, NewPaymentRepository(pool).SaveIntent(ctx, intent))

	err := repo.WithinTx(ctx, func(tx order.Tx) error {
		_, err := tx.PaymentIntent(ctx, "order_missing")
		return err
	})
	require.ErrorIs(t, err, payment.ErrUnknownIntent)

	err = repo.WithinTx(ctx, func(tx order.Tx) error {
		in, err := tx.PaymentIntent(ctx, "order_1")
		if err != nil {
			return err
		}
		assert.Equal(t, "u1", in.UserID)
		assert.True(t, o.Amount.Equal(in.Amount))
		if err := tx.CreatePayment(ctx, pay); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.ClearCheckout(ctx, "u1")
	})
	require.NoError(t, err)

	err = repo.WithinTx(ctx, func(tx order.Tx) error {
		return tx.CreatePayment(ctx, &payment.Payment{UserID: "u1", GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", Amount: o.Amount})
	})
	require.ErrorIs(t, err, payment.ErrDuplicate)

	cancelled := o.Details[0].ID
	err = repo.WithinTx(ctx, func(tx order.Tx) error {
		p, err := tx.PaymentForOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		d, err := tx.LockDetail(ctx, o.ID, cancelled)
		if err != nil {
			return err
		}
		if err := tx.SetDetailState(ctx, d.ID, order.StatusCanceled, order.FlagCancelled); err != nil {
			return err
		}
		if err := tx.SetLineStatus(ctx, d.ID, string(order.StatusCanceled), order.TypeCancel); err != nil {
			return err
		}
		return tx.CreateRefund(ctx, &refund.Refund{
			OrderID: o.ID, DetailID: d.ID, UserID: "u1", Status: refund.StatusInitiated,
			Amount: d.Price, PaymentID: p.GatewayPaymentID, PaymentMethod: "razorpay",
		})
	})
	require.NoError(t, err)

	err = repo.WithinTx(ctx, func(tx order.Tx) error {
		return tx.SetDetailState(ctx, cancelled, order.StatusReturnRequested, order.FlagReturned)
	})
	require.Error(t, err, "a line may carry only one flag")

	err = repo.WithinTx(ctx, func(tx order.Tx) error {
		return tx.CreateRefund(ctx, &refund.Refund{
			OrderID: o.ID, DetailID: cancelled, UserID: "u1", Status: refund.StatusInitiated,
			PaymentID: "pay_1", PaymentMethod: "razorpay",
		})
	})
	require.ErrorIs(t, err, refund.ErrDuplicate)

	n, err := repo.MarkShipped(ctx, o.ID, "AWB1", "https://track.example/AWB1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByPublicID(ctx, o.PublicID)
	require.NoError(t, err)
	require.Len(t, got.Details, 2)
	assert.Equal(t, order.StatusCanceled, got.Details[0].ProductStatus)
	assert.Empty(t, got.Details[0].TrackingID)
	assert.Equal(t, order.StatusShipped, got.Details[1].ProductStatus)
	assert.Equal(t, "AWB1", got.Details[1].TrackingID)

	_, err = repo.MarkDelivered(ctx, o.ID, now)
	require.NoError(t, err)
	got, err = repo.GetByPublicID(ctx, o.PublicID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, got.Details[1].ProductStatus)
	assert.Empty(t, got.Details[1].TrackingID)
	require.NotNil(t, got.Details[1].Status.DeliveredDate)

	list, err := repo.List(ctx, order.Filter{Status: order.StatusDelivered})
	require.NoError(t, err)
	require.Len(t, list, 1)

	rfs, err := refunds.ListRefunds(ctx, refund.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, rfs, 1)
	processedAt := now
	rf, err := refunds.SetRefundStatus(ctx, rfs[0].ID, refund.StatusProcessed, refund.MessageProcessed, &processedAt)
	require.NoError(t, err)
	assert.Equal(t, refund.StatusProcessed, rf.Status)
	require.NotNil(t, rf.RefundDate)

	_, err = refunds.SetRefundStatus(ctx, 9999, refund.StatusAccepted, "", nil)
	require.ErrorIs(t, err, refund.ErrNotFound)

	_, err = repo.GetByPublicID(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
}
