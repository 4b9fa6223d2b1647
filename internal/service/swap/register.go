package swap

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/swap-market/internal/app"
	"github.com/oggyb/swap-market/internal/server"
)

const ServiceName = "swapmarket.SwapService"

// SwapServiceServer is the handler set behind ServiceDesc.
type SwapServiceServer interface {
	ExpressInterest(context.Context, *ExpressInterestRequest) (*ExpressInterestResponse, error)
	CompleteConversation(context.Context, *ConversationRequest) (*ConversationResponse, error)
	RejectConversation(context.Context, *ConversationRequest) (*ConversationResponse, error)
	TransitionConversation(context.Context, *TransitionRequest) (*ConversationResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetEntitlements(context.Context, *GetEntitlementsRequest) (*GetEntitlementsResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SwapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		server.Unary(ServiceName, "ExpressInterest", SwapServiceServer.ExpressInterest),
		server.Unary(ServiceName, "CompleteConversation", SwapServiceServer.CompleteConversation),
		server.Unary(ServiceName, "RejectConversation", SwapServiceServer.RejectConversation),
		server.Unary(ServiceName, "TransitionConversation", SwapServiceServer.TransitionConversation),
		server.Unary(ServiceName, "ListConversations", SwapServiceServer.ListConversations),
		server.Unary(ServiceName, "GetEntitlements", SwapServiceServer.GetEntitlements),
	},
}

// Registrar ties the Swap service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Swap service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Swap service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewSwapService(r.appCtx))
}
