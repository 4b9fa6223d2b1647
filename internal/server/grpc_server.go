package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/swap-market/internal/config"
	"github.com/oggyb/swap-market/internal/metrics"
)

// NewGRPCServer builds a server with the JSON codec, the logging interceptor
// and all provided services registered.
func NewGRPCServer(log *slog.Logger, m *metrics.MetricsManager, registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(JSONCodec{}),
		grpc.ChainUnaryInterceptor(UnaryInterceptor(log, m)),
	)

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)
	return grpcServer
}

// StartGRPCServer boots a gRPC server and registers all provided services
func StartGRPCServer(cfg *config.Config, log *slog.Logger, m *metrics.MetricsManager, registrars ...Registrar) error {
	addr := fmt.Sprintf("%s:%s", cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	log.Info("grpc server listening", "addr", addr)
	return NewGRPCServer(log, m, registrars...).Serve(lis)
}
