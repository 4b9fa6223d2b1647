package discovery

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/server"
)

const ServiceName = "swapmarket.DiscoveryService"

// DiscoveryServiceServer is the handler set behind ServiceDesc.
type DiscoveryServiceServer interface {
	UpdateCriteria(context.Context, *UpdateCriteriaRequest) (*CriteriaResponse, error)
	GetCriteria(context.Context, *SessionRequest) (*CriteriaResponse, error)
	ResetCriteria(context.Context, *SessionRequest) (*CriteriaResponse, error)
	Browse(context.Context, *BrowseRequest) (*BrowseResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiscoveryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		server.Unary(ServiceName, "UpdateCriteria", DiscoveryServiceServer.UpdateCriteria),
		server.Unary(ServiceName, "GetCriteria", DiscoveryServiceServer.GetCriteria),
		server.Unary(ServiceName, "ResetCriteria", DiscoveryServiceServer.ResetCriteria),
		server.Unary(ServiceName, "Browse", DiscoveryServiceServer.Browse),
	},
}

// Registrar ties the Discovery service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Discovery service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewDiscoveryService(r.appCtx))
}
