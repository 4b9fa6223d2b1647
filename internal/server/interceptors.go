package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/swap-market/internal/metrics"
)

// UnaryInterceptor logs every call and records latency and error codes.
// m may be nil.
func UnaryInterceptor(log *slog.Logger, m *metrics.MetricsManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)
		code := status.Code(err)

		if m != nil {
			m.APILatency.WithLabelValues(info.FullMethod).Observe(elapsed.Seconds())
			if err != nil {
				m.APIErrorsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()
			}
		}

		switch {
		case err == nil:
			log.Debug("rpc", "method", info.FullMethod, "duration", elapsed)
		case code == codes.Internal || code == codes.Unknown:
			log.Error("rpc failed", "method", info.FullMethod, "duration", elapsed, "code", code, "err", err)
		default:
			log.Info("rpc rejected", "method", info.FullMethod, "duration", elapsed, "code", code, "err", err)
		}
		return resp, err
	}
}
