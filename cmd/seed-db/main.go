package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/repository"
)

type productJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Title           string          `json:"title"`
	Category        string          `json:"category"`
	Image           string          `json:"image"`
	MRP             decimal.Decimal `json:"mrp"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Tags            []string        `json:"tags"`
	Sizes           []struct {
		Name      string `json:"name"`
		Available int    `json:"available"`
	} `json:"sizes"`
}

var hundred = decimal.NewFromInt(100)

// sellingPrice applies the product discount to the MRP, rounded to paise.
func (p productJSON) sellingPrice() decimal.Decimal {
	return p.MRP.Sub(p.MRP.Mul(p.DiscountPercent).Div(hundred)).Round(2)
}

type seedCoupon struct {
	coupon     coupon.Coupon
	conditions []coupon.Condition
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (embedded catalog when empty)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("running migrations")

	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if apiKey == "" {
		slog.Warn("no API key given, skipping admin key")
		return nil
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	data := db.Products
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	repo := repository.NewProductRepository(pool)
	for _, p := range products {
		sizes := make([]product.Size, 0, len(p.Sizes))
		for _, s := range p.Sizes {
			sizes = append(sizes, product.Size{Name: s.Name, Available: s.Available})
		}
		if err := repo.Upsert(ctx, &product.Product{
			ID:              p.ID,
			Name:            p.Name,
			Title:           p.Title,
			Category:        p.Category,
			Image:           p.Image,
			MRP:             p.MRP,
			DiscountPercent: p.DiscountPercent,
			SellingPrice:    p.sellingPrice(),
			Tags:            p.Tags,
			Sizes:           sizes,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	coupons := []seedCoupon{
		{
			coupon: coupon.Coupon{
				Code:         "WELCOME10",
				Description:  "10% off orders above 999, up to 200",
				DiscountType: pricing.DiscountPercentage,
				Value:        decimal.NewFromInt(10),
				MaxValue:     decimal.NewNullDecimal(decimal.NewFromInt(200)),
				UsageLimit:   1000,
				Active:       true,
			},
			conditions: []coupon.Condition{
				{Type: coupon.ConditionMinimumPurchase, Value: "999"},
			},
		},
		{
			coupon: coupon.Coupon{
				Code:         "SUMMER150",
				Description:  "150 off summer picks",
				DiscountType: pricing.DiscountFlat,
				Value:        decimal.NewFromInt(150),
				UsageLimit:   500,
				Active:       true,
			},
			conditions: []coupon.Condition{
				{Type: coupon.ConditionTag, Value: "summer"},
				{Type: coupon.ConditionMinimumPurchase, Value: "1200"},
			},
		},
		{
			coupon: coupon.Coupon{
				Code:         "HOODIE20",
				Description:  "20% off hoodies",
				DiscountType: pricing.DiscountPercentage,
				Value:        decimal.NewFromInt(20),
				UsageLimit:   100,
				Active:       true,
			},
			conditions: []coupon.Condition{
				{Type: coupon.ConditionProductCategory, Value: "hoodies"},
			},
		},
	}

	repo := repository.NewCouponRepository(pool)
	for _, c := range coupons {
		err := repo.Create(ctx, &c.coupon)
		switch {
		case errors.Is(err, coupon.ErrDuplicateCode):
			slog.Info("coupon exists, skipping", slog.String("code", c.coupon.Code))
			continue
		case err != nil:
			return errors.Wrapf(err, "create coupon %s", c.coupon.Code)
		}
		for _, cond := range c.conditions {
			if _, err := repo.AddCondition(ctx, c.coupon.Code, cond); err != nil {
				return errors.Wrapf(err, "add %s condition to %s", cond.Type, c.coupon.Code)
			}
		}

		slog.Info("created coupon", slog.String("code", c.coupon.Code), slog.String("description", c.coupon.Description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repository.NewAPIKeyRepository(pool).Upsert(ctx, auth.APIKeyInfo{
		ID:      "default",
		KeyHash: handler.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{handler.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default admin key"))

	return nil
}
