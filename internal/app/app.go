package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	domainpayment "github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/refund"
	domainshipping "github.com/xenking/storefront/internal/domain/shipping"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/payment"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/shipping"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PostgresCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Rate limit store: Redis when configured, process memory otherwise.
	var limiter httpmiddleware.Limiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
		limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
	} else {
		mem := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		go mem.Cleanup(ctx)
		limiter = mem
	}

	// Order events.
	var (
		notifier  order.Notifier = order.NopNotifier{}
		publisher *notify.Publisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = notify.NewPublisher(notify.NewWriter(cfg.Kafka), lg.Named("notify"), m.MeterProvider(), cfg.Kafka)
		if err != nil {
			return errors.Wrap(err, "create event publisher")
		}
		notifier = publisher
		healthSvc.AddReadinessCheck("kafka", 2*time.Second, health.KafkaCheck(cfg.Kafka.Brokers))
	} else {
		lg.Warn("Kafka brokers not configured, order events are discarded")
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	checkoutRepo := repository.NewCheckoutRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	refundRepo := repository.NewRefundRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Domain services.
	engine := pricing.NewEngine(pricing.Config{
		WrappingCostPerItem: decimal.NewFromFloat(cfg.Pricing.WrappingCostPerItem),
	})
	cartService := cart.NewService(cartRepo, productRepo, engine, cfg.Cart.MaxLineQuantity)
	couponService := coupon.NewService(couponRepo, cartService)
	checkoutService := checkout.NewService(checkoutRepo, cartService, couponService, engine)
	paymentService := domainpayment.NewService(
		payment.NewGateway(payment.Config{
			BaseURL:   cfg.Payment.BaseURL,
			KeyID:     cfg.Payment.KeyID,
			KeySecret: cfg.Payment.KeySecret,
			Timeout:   cfg.Payment.Timeout,
		}),
		checkoutService,
		paymentRepo,
		cfg.Payment.Currency,
	)
	orderService := order.NewService(
		orderRepo,
		payment.NewHMACVerifier(cfg.Payment.KeySecret),
		checkoutService,
		notifier,
		order.Config{
			ReturnWindowDays:     cfg.Order.ReturnWindowDays,
			EstimateDeliveryDays: cfg.Order.EstimateDeliveryDays,
			PaymentMethod:        cfg.Order.PaymentMethod,
		},
	)
	shippingService := domainshipping.NewService(
		shipping.NewClient(shipping.Config{
			BaseURL:  cfg.Shipping.BaseURL,
			APIKey:   cfg.Shipping.APIKey,
			Username: cfg.Shipping.Username,
			Password: cfg.Shipping.Password,
			Timeout:  cfg.Shipping.Timeout,
		}),
		orderService,
		decimal.NewFromFloat(cfg.Shipping.UnitWeightKg),
	)

	// HTTP handlers.
	h := handler.NewHandler(handler.Services{
		Products:  productRepo,
		Carts:     cartService,
		Coupons:   couponService,
		Checkouts: checkoutService,
		Payments:  paymentService,
		Orders:    orderService,
		Refunds:   refund.NewService(refundRepo),
		Shipping:  shippingService,
	}, handler.NewAuthenticator(handler.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.Issuer,
	}, apikeyRepo, []byte(cfg.APIKeyPepper)))

	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
				ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RateLimit(limiter, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("storefront-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	stopped := make(chan struct{})
	if publisher != nil {
		// The publisher drains its queue after the server stopped accepting
		// requests, so it runs on its own context.
		pubCtx, stopPublisher := context.WithCancel(context.WithoutCancel(ctx))
		defer stopPublisher()
		g.Go(func() error {
			return publisher.Run(pubCtx)
		})
		g.Go(func() error {
			<-stopped
			stopPublisher()
			return nil
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(stopped)
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
