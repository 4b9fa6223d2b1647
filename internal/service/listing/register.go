package listing

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/server"
)

const ServiceName = "swapmarket.ListingService"

// ListingServiceServer is the handler set behind ServiceDesc.
type ListingServiceServer interface {
	CreateListing(context.Context, *CreateListingRequest) (*ListingResponse, error)
	GetListing(context.Context, *GetListingRequest) (*ListingResponse, error)
	UpdateListingStatus(context.Context, *UpdateStatusRequest) (*ListingResponse, error)
	RecordView(context.Context, *RecordViewRequest) (*RecordViewResponse, error)
	LikeListing(context.Context, *LikeRequest) (*LikeResponse, error)
	DeleteListing(context.Context, *DeleteListingRequest) (*DeleteListingResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ListingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		server.Unary(ServiceName, "CreateListing", ListingServiceServer.CreateListing),
		server.Unary(ServiceName, "GetListing", ListingServiceServer.GetListing),
		server.Unary(ServiceName, "UpdateListingStatus", ListingServiceServer.UpdateListingStatus),
		server.Unary(ServiceName, "RecordView", ListingServiceServer.RecordView),
		server.Unary(ServiceName, "LikeListing", ListingServiceServer.LikeListing),
		server.Unary(ServiceName, "DeleteListing", ListingServiceServer.DeleteListing),
	},
}

// Registrar ties the Listing service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Listing service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewListingService(r.appCtx))
}
