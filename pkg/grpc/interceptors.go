package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"go-storefront/pkg/errors"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
)

// TraceIDMetadataKey carries the trace id between processes
const TraceIDMetadataKey = "x-trace-id"

// healthPrefix marks probe traffic, logged at debug so it does not drown requests
const healthPrefix = "/grpc.health.v1.Health/"

// UnaryServerInterceptor attaches a trace id, bounds the call by timeout,
// turns panics into codes.Internal and AppErrors into statuses, and counts
// every call.
func UnaryServerInterceptor(log *logger.Logger, timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		ctx = withTraceID(ctx)

		ctx, cancel := withTimeout(ctx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithContext(ctx).Error("grpc handler panicked",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
				)
				resp, err = nil, errors.GRPCStatus(errors.NewInternal("panic", fmt.Errorf("%v", r)))
			}
			logCall(ctx, log, info.FullMethod, start, err)
		}()

		resp, err = handler(ctx, req)
		if err != nil {
			return nil, errors.GRPCStatus(err)
		}
		return resp, nil
	}
}

// StreamServerInterceptor gives stream handlers the same trace id handling
func StreamServerInterceptor(log *logger.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		ctx := withTraceID(ss.Context())

		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		if err != nil {
			err = errors.GRPCStatus(err)
		}
		logCall(ctx, log, info.FullMethod, start, err)
		return err
	}
}

// UnaryClientInterceptor forwards the caller's trace id and maps statuses
// back to AppErrors
func UnaryClientInterceptor(timeout time.Duration) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if traceID := logger.GetTraceID(ctx); traceID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, TraceIDMetadataKey, traceID)
		}

		ctx, cancel := withTimeout(ctx, timeout)
		defer cancel()

		if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
			return errors.FromGRPCStatus(err)
		}
		return nil
	}
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context {
	return s.ctx
}

func logCall(ctx context.Context, log *logger.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	metrics.RecordGRPCRequest(method, code.String())

	level := zapcore.InfoLevel
	switch {
	case code == codes.Internal || code == codes.Unknown:
		level = zapcore.ErrorLevel
	case err != nil:
		level = zapcore.WarnLevel
	case strings.HasPrefix(method, healthPrefix):
		level = zapcore.DebugLevel
	}

	log.WithContext(ctx).Check(level, "grpc call").Write(
		zap.String("method", method),
		zap.String("grpc_code", code.String()),
		zap.Duration("duration", time.Since(start)),
	)
}

// withTraceID reuses the caller's trace id or starts a new one
func withTraceID(ctx context.Context) context.Context {
	traceID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(TraceIDMetadataKey); len(values) > 0 {
			traceID = values[0]
		}
	}
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return logger.WithTraceIDContext(ctx, traceID)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
