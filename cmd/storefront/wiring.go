package main

import (
	"fmt"

	"gorm.io/gorm"

	catalogadapters "go-storefront/internal/catalog/adapters"
	catalogapp "go-storefront/internal/catalog/application"
	cataloghttp "go-storefront/internal/catalog/infrastructure"
	catalogports "go-storefront/internal/catalog/ports"
	orderadapters "go-storefront/internal/orders/adapters"
	orderapp "go-storefront/internal/orders/application"
	orderdomain "go-storefront/internal/orders/domain"
	orderinfra "go-storefront/internal/orders/infrastructure"
	orderports "go-storefront/internal/orders/ports"
	promoadapters "go-storefront/internal/promotions/adapters"
	promoapp "go-storefront/internal/promotions/application"
	promohttp "go-storefront/internal/promotions/infrastructure"
	promoports "go-storefront/internal/promotions/ports"
	useradapters "go-storefront/internal/users/adapters"
	userapp "go-storefront/internal/users/application"
	userhttp "go-storefront/internal/users/infrastructure"
	userports "go-storefront/internal/users/ports"
	"go-storefront/pkg/auth"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/config"
	"go-storefront/pkg/db"
	"go-storefront/pkg/events"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/rabbitmq"
)

// stores bundles the repositories of every context over one database, so a
// single transaction can span catalog stock and order rows.
type stores struct {
	products   catalogports.ProductRepository
	promotions promoports.PromotionRepository
	orders     orderports.OrderRepository
	users      userports.UserRepository
	tx         db.Transactor
	conn       *gorm.DB
}

func openStores(cfg *config.Config, log *logger.Logger) (*stores, error) {
	if cfg.DBDriver == db.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return &stores{
			products:   catalogadapters.NewMemoryProductRepository(),
			promotions: promoadapters.NewMemoryPromotionRepository(),
			orders:     orderadapters.NewMemoryOrderRepository(),
			users:      useradapters.NewMemoryUserRepository(),
			tx:         db.NewMemoryTransactor(),
		}, nil
	}

	conn, err := db.NewConnection(db.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Timeout:  cfg.DBTimeout,
	})
	if err != nil {
		return nil, err
	}
	log.Info("connected to database: " + cfg.DBDriver)

	products := catalogadapters.NewGormProductRepository(conn)
	promotions := promoadapters.NewGormPromotionRepository(conn)
	orders := orderadapters.NewGormOrderRepository(conn)
	users := useradapters.NewGormUserRepository(conn)

	// Products before promotions: the join table references both
	migrations := []struct {
		name string
		run  func() error
	}{
		{"users", users.Migrate},
		{"products", products.Migrate},
		{"promotions", promotions.Migrate},
		{"orders", orders.Migrate},
	}
	for _, m := range migrations {
		if err := m.run(); err != nil {
			return nil, fmt.Errorf("failed to migrate %s: %w", m.name, err)
		}
	}

	return &stores{
		products:   products,
		promotions: promotions,
		orders:     orders,
		users:      users,
		tx:         db.NewGormTransactor(conn),
		conn:       conn,
	}, nil
}

// Close releases the database pool, if any
func (s *stores) Close() {
	if s.conn == nil {
		return
	}
	if sqlDB, err := s.conn.DB(); err == nil {
		sqlDB.Close()
	}
}

// eventBus holds the optional broker connection and one publisher per exchange
type eventBus struct {
	conn       *rabbitmq.Connection
	users      userports.EventPublisher
	orders     orderports.EventPublisher
	promotions promoports.EventPublisher
}

// connectEvents dials RabbitMQ; without a broker every publisher is a no-op
// and the storefront keeps serving.
func connectEvents(cfg *config.Config, log *logger.Logger) *eventBus {
	bus := noopBus()

	conn, err := rabbitmq.NewConnection(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("failed to connect to RabbitMQ, events will be disabled: " + err.Error())
		return bus
	}
	bus.conn = conn

	if pub, err := rabbitmq.NewPublisher(conn, events.ExchangeUsers, log); err != nil {
		log.Warn("failed to create users publisher: " + err.Error())
	} else {
		bus.users = useradapters.NewRabbitMQPublisher(pub, log)
	}

	if pub, err := rabbitmq.NewPublisher(conn, events.ExchangeOrders, log); err != nil {
		log.Warn("failed to create orders publisher: " + err.Error())
	} else {
		bus.orders = orderadapters.NewRabbitMQPublisher(pub, log)
	}

	if pub, err := rabbitmq.NewPublisher(conn, events.ExchangePromotions, log); err != nil {
		log.Warn("failed to create promotions publisher: " + err.Error())
	} else {
		bus.promotions = promoadapters.NewRabbitMQPublisher(pub, log)
	}

	return bus
}

func noopBus() *eventBus {
	return &eventBus{
		users:      useradapters.NoopPublisher{},
		orders:     orderadapters.NoopPublisher{},
		promotions: promoadapters.NoopPublisher{},
	}
}

// Close closes the broker connection, if any
func (b *eventBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// services is the wired application: use cases plus their HTTP handlers
type services struct {
	tokens   *auth.TokenManager
	users    *userapp.UserUseCase
	engine   *promoapp.Engine
	ordersUC *orderapp.OrderUseCase

	products   *cataloghttp.HTTPHandler
	promotions *promohttp.HTTPHandler
	orders     *orderinfra.HTTPHandler
	accounts   *userhttp.HTTPHandler
}

func buildServices(cfg *config.Config, st *stores, bus *eventBus, clk clock.Clock, log *logger.Logger) (*services, error) {
	tokens := auth.NewTokenManager(cfg.JWTSecret).WithClock(clk.Now)

	calc, err := orderdomain.NewPriceCalculator(cfg.TaxRate, cfg.ShippingFee, cfg.FreeShippingThreshold)
	if err != nil {
		return nil, err
	}

	// Promotions price products through the catalog repository; the catalog
	// asks the engine for discounts. Neither needs the other at construction.
	engine := promoapp.NewEngine(
		st.promotions,
		promoadapters.NewCatalogPricer(st.products),
		bus.promotions,
		clk,
		log.Named("promotions"),
	)
	products := catalogapp.NewProductUseCase(st.products, engine, cfg.PaginationLimit, log.Named("catalog"))
	ledger := catalogapp.NewInventoryLedger(st.products, st.tx, log.Named("inventory"))

	users := userapp.NewUserUseCase(
		st.users,
		bus.users,
		tokens,
		userapp.TokenTTLs{Access: cfg.JWTTTL, PasswordReset: cfg.PasswordResetTTL},
		clk,
		log.Named("users"),
	)

	if cfg.PayPalClientID == "" {
		log.Warn("PayPal credentials not set, payment confirmation will fail")
	}
	verifier := orderadapters.NewPayPalVerifier(
		cfg.PayPalBaseURL,
		cfg.PayPalClientID,
		cfg.PayPalClientSecret,
		cfg.HTTPTimeout,
		log.Named("paypal"),
	)

	orders := orderapp.NewOrderUseCase(
		st.orders,
		orderadapters.NewCatalogClient(st.products, ledger),
		orderadapters.NewLocalUserClient(st.users),
		verifier,
		bus.orders,
		st.tx,
		calc,
		clk,
		log.Named("orders"),
	)

	return &services{
		tokens:     tokens,
		users:      users,
		engine:     engine,
		ordersUC:   orders,
		products:   cataloghttp.NewHTTPHandler(products),
		promotions: promohttp.NewHTTPHandler(engine),
		orders:     orderinfra.NewHTTPHandler(orders),
		accounts:   userhttp.NewHTTPHandler(users),
	}, nil
}

func (s *services) paymentConsumer(conn *rabbitmq.Connection, log *logger.Logger) (*orderinfra.PaymentCapturedConsumer, error) {
	return orderinfra.NewPaymentCapturedConsumer(conn, s.ordersUC, log.Named("payments"))
}
