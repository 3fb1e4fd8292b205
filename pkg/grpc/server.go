package grpc

import (
	"context"
	"crypto/tls"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
)

// ServiceName is the name the storefront reports health under
const ServiceName = "storefront.v1.Storefront"

// NewServer builds a gRPC server with the logging/tracing interceptors and a
// registered health service. A nil tlsConfig serves plaintext.
func NewServer(log *logger.Logger, timeout time.Duration, tlsConfig *tls.Config) (*grpc.Server, *health.Server) {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(UnaryServerInterceptor(log, timeout)),
		grpc.StreamInterceptor(StreamServerInterceptor(log)),
	}
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	server := grpc.NewServer(opts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return server, healthServer
}

// CheckHealth dials addr and asks the health service about ServiceName
func CheckHealth(ctx context.Context, addr string, timeout time.Duration, tlsConfig *tls.Config) error {
	creds := insecure.NewCredentials()
	if tlsConfig != nil {
		creds = credentials.NewTLS(tlsConfig)
	}

	conn, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithUnaryInterceptor(UnaryClientInterceptor(timeout)),
	)
	if err != nil {
		return errors.NewExternalService("grpc "+addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return errors.NewExternalService("storefront", nil)
	}
	return nil
}
