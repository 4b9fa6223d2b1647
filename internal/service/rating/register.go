package rating

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/server"
)

const ServiceName = "swapmarket.RatingService"

type RatingServiceServer interface {
	RateUser(context.Context, *RateUserRequest) (*RateUserResponse, error)
	GetRatingSummary(context.Context, *SummaryRequest) (*SummaryResponse, error)
	ListRatings(context.Context, *ListRatingsRequest) (*ListRatingsResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RatingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		server.Unary(ServiceName, "RateUser", RatingServiceServer.RateUser),
		server.Unary(ServiceName, "GetRatingSummary", RatingServiceServer.GetRatingSummary),
		server.Unary(ServiceName, "ListRatings", RatingServiceServer.ListRatings),
	},
}

// Registrar ties the Rating service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewRatingService(r.appCtx))
}
