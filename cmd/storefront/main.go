// Package main Storefront API
//
// Catalog, promotions, orders and accounts for a single storefront, served
// over REST with a gRPC health endpoint and a background expiry scheduler.
//
//	@title			Storefront API
//	@version		1.0
//	@description	Pricing, inventory and order lifecycle for the storefront
//
//	@contact.name	API Support
//	@contact.email	support@example.com
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//	@schemes	http https
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	_ "go-storefront/docs/swagger"
	"go-storefront/internal/scheduler"
	"go-storefront/pkg/clock"
	"go-storefront/pkg/config"
	grpcpkg "go-storefront/pkg/grpc"
	"go-storefront/pkg/lock"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/middleware"
	pkgtls "go-storefront/pkg/tls"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Container probes run the binary as `storefront healthcheck`
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		os.Exit(healthcheck(cfg))
	}

	// Initialize logger
	log := logger.NewWithOptions(cfg.ServiceName, cfg.LogLevel, logger.Options{Format: cfg.LogFormat})
	defer log.Sync()

	log.Info("starting storefront")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(cfg, log)
	if err != nil {
		log.Fatal("failed to open storage: " + err.Error())
	}
	defer st.Close()

	bus := connectEvents(cfg, log)
	defer bus.Close()

	app, err := buildServices(cfg, st, bus, clock.Real{}, log)
	if err != nil {
		log.Fatal("failed to wire application: " + err.Error())
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := app.users.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatal("failed to seed admin account: " + err.Error())
		}
	}

	// Payment confirmations pushed by the payments exchange
	if bus.conn != nil {
		consumer, err := app.paymentConsumer(bus.conn, log)
		if err != nil {
			log.Warn("failed to create payment consumer: " + err.Error())
		} else if err := consumer.Start(ctx); err != nil {
			log.Warn("failed to start payment consumer: " + err.Error())
		} else {
			defer consumer.Wait()
		}
	}

	// Expiry scheduler
	locker := newLocker(ctx, cfg, log)
	sched, err := scheduler.New(app.ordersUC, app.engine, locker, clock.Real{}, scheduler.Config{
		Interval:             cfg.SweepInterval,
		OrderExpiryThreshold: cfg.OrderExpiryThreshold,
	}, log)
	if err != nil {
		log.Fatal("failed to create scheduler: " + err.Error())
	}
	sched.Start()

	// HTTP
	router := newRouter(app, log)
	httpServer, err := startHTTPServer(cfg, log, router)
	if err != nil {
		log.Fatal("failed to start HTTP server: " + err.Error())
	}

	// gRPC health
	grpcServer, healthServer := setupGRPCServer(cfg, log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen for gRPC: " + err.Error())
	}

	go func() {
		log.Info("gRPC server listening on :" + cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("gRPC server error: " + err.Error())
		}
	}()
	healthServer.SetServingStatus(grpcpkg.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down servers...")
	healthServer.SetServingStatus(grpcpkg.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error: " + err.Error())
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler shutdown error: " + err.Error())
	}
	grpcServer.GracefulStop()

	// stops the payment consumer loop
	cancel()

	log.Info("servers stopped")
}

func newRouter(app *services, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.TraceID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.Prometheus())
	router.Use(middleware.CORS())

	authn := middleware.Auth(app.tokens)
	admin := middleware.RequireAdmin()

	api := router.Group("/api/v1")
	app.products.RegisterRoutes(api, authn, admin)
	app.promotions.RegisterRoutes(api, authn, admin)
	app.orders.RegisterRoutes(api, authn, admin)
	app.accounts.RegisterRoutes(api, authn, admin)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

func startHTTPServer(cfg *config.Config, log *logger.Logger, router *gin.Engine) (*http.Server, error) {
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	}

	if !cfg.TLSEnabled {
		go func() {
			log.Info("HTTP server listening on http://localhost:" + cfg.HTTPPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("HTTP server error: " + err.Error())
			}
		}()
		return server, nil
	}

	tlsConfig, err := pkgtls.ServerConfig(cfg.TLSCertFile, cfg.TLSKeyFile, "", false)
	if err != nil {
		return nil, err
	}
	server.Addr = ":" + cfg.HTTPSPort
	server.TLSConfig = tlsConfig

	go func() {
		log.Info("HTTPS server listening on https://localhost:" + cfg.HTTPSPort)
		if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTPS server error: " + err.Error())
		}
	}()
	return server, nil
}

func setupGRPCServer(cfg *config.Config, log *logger.Logger) (*grpc.Server, *health.Server) {
	var tlsConfig *tls.Config

	// Configure mTLS if enabled
	if cfg.GRPCMTLSEnabled {
		var err error
		tlsConfig, err = pkgtls.ServerConfig(cfg.GRPCServerCert, cfg.GRPCServerKey, cfg.TLSCAFile, true)
		if err != nil {
			log.Fatal("failed to load TLS config: " + err.Error())
		}
		log.Info("gRPC mTLS enabled")
	}

	return grpcpkg.NewServer(log, cfg.GRPCTimeout, tlsConfig)
}

// newLocker returns a Redis lease when REDIS_URL is set so only one replica
// sweeps per tick; a single instance runs without one.
func newLocker(ctx context.Context, cfg *config.Config, log *logger.Logger) lock.Locker {
	if cfg.RedisURL == "" {
		return lock.Noop{}
	}
	locker, err := lock.NewRedisLocker(ctx, cfg.RedisURL, cfg.ServiceName+":")
	if err != nil {
		log.Warn("failed to connect to Redis, sweeps run unguarded: " + err.Error())
		return lock.Noop{}
	}
	log.Info("sweep leases backed by Redis")
	return locker
}

func healthcheck(cfg *config.Config) int {
	var tlsConfig *tls.Config
	if cfg.GRPCMTLSEnabled {
		var err error
		tlsConfig, err = pkgtls.ClientConfig(cfg.GRPCClientCert, cfg.GRPCClientKey, cfg.TLSCAFile)
		if err != nil {
			return 1
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := grpcpkg.CheckHealth(ctx, cfg.GRPCAddr, cfg.GRPCTimeout, tlsConfig); err != nil {
		return 1
	}
	return 0
}
