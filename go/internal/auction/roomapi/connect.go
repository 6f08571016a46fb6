package roomapi

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// RoomServiceName is the fully-qualified name of the RoomService service.
const RoomServiceName = "liveauction.room.v1.RoomService"

const (
	RoomServiceGetStateProcedure      = "/liveauction.room.v1.RoomService/GetState"
	RoomServiceSubmitBidProcedure     = "/liveauction.room.v1.RoomService/SubmitBid"
	RoomServicePauseAuctionProcedure  = "/liveauction.room.v1.RoomService/PauseAuction"
	RoomServiceResumeAuctionProcedure = "/liveauction.room.v1.RoomService/ResumeAuction"
	RoomServiceCloseAuctionProcedure  = "/liveauction.room.v1.RoomService/CloseAuction"
)

// RoomServiceHandler is implemented by the room service.
type RoomServiceHandler interface {
	GetState(context.Context, *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error)
	SubmitBid(context.Context, *connect.Request[SubmitBidRequest]) (*connect.Response[SubmitBidResponse], error)
	PauseAuction(context.Context, *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error)
	ResumeAuction(context.Context, *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error)
	CloseAuction(context.Context, *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error)
}

// NewRoomServiceHandler builds an HTTP handler from the service implementation. It returns
// the path on which to mount the handler and the handler itself.
func NewRoomServiceHandler(svc RoomServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	getState := connect.NewUnaryHandler(RoomServiceGetStateProcedure, svc.GetState, opts...)
	submitBid := connect.NewUnaryHandler(RoomServiceSubmitBidProcedure, svc.SubmitBid, opts...)
	pause := connect.NewUnaryHandler(RoomServicePauseAuctionProcedure, svc.PauseAuction, opts...)
	resume := connect.NewUnaryHandler(RoomServiceResumeAuctionProcedure, svc.ResumeAuction, opts...)
	closeAuction := connect.NewUnaryHandler(RoomServiceCloseAuctionProcedure, svc.CloseAuction, opts...)

	return "/" + RoomServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RoomServiceGetStateProcedure:
			getState.ServeHTTP(w, r)
		case RoomServiceSubmitBidProcedure:
			submitBid.ServeHTTP(w, r)
		case RoomServicePauseAuctionProcedure:
			pause.ServeHTTP(w, r)
		case RoomServiceResumeAuctionProcedure:
			resume.ServeHTTP(w, r)
		case RoomServiceCloseAuctionProcedure:
			closeAuction.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// RoomServiceClient is a client for the RoomService service.
type RoomServiceClient interface {
	GetState(context.Context, *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error)
	SubmitBid(context.Context, *connect.Request[SubmitBidRequest]) (*connect.Response[SubmitBidResponse], error)
	PauseAuction(context.Context, *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error)
	ResumeAuction(context.Context, *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error)
	CloseAuction(context.Context, *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error)
}

type roomServiceClient struct {
	getState      *connect.Client[GetStateRequest, GetStateResponse]
	submitBid     *connect.Client[SubmitBidRequest, SubmitBidResponse]
	pauseAuction  *connect.Client[LifecycleRequest, LifecycleResponse]
	resumeAuction *connect.Client[LifecycleRequest, LifecycleResponse]
	closeAuction  *connect.Client[LifecycleRequest, LifecycleResponse]
}

// NewRoomServiceClient constructs a client for the RoomService service using the JSON codec.
func NewRoomServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) RoomServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &roomServiceClient{
		getState:      connect.NewClient[GetStateRequest, GetStateResponse](httpClient, baseURL+RoomServiceGetStateProcedure, opts...),
		submitBid:     connect.NewClient[SubmitBidRequest, SubmitBidResponse](httpClient, baseURL+RoomServiceSubmitBidProcedure, opts...),
		pauseAuction:  connect.NewClient[LifecycleRequest, LifecycleResponse](httpClient, baseURL+RoomServicePauseAuctionProcedure, opts...),
		resumeAuction: connect.NewClient[LifecycleRequest, LifecycleResponse](httpClient, baseURL+RoomServiceResumeAuctionProcedure, opts...),
		closeAuction:  connect.NewClient[LifecycleRequest, LifecycleResponse](httpClient, baseURL+RoomServiceCloseAuctionProcedure, opts...),
	}
}

func (c *roomServiceClient) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[GetStateResponse], error) {
	return c.getState.CallUnary(ctx, req)
}

func (c *roomServiceClient) SubmitBid(ctx context.Context, req *connect.Request[SubmitBidRequest]) (*connect.Response[SubmitBidResponse], error) {
	return c.submitBid.CallUnary(ctx, req)
}

func (c *roomServiceClient) PauseAuction(ctx context.Context, req *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error) {
	return c.pauseAuction.CallUnary(ctx, req)
}

func (c *roomServiceClient) ResumeAuction(ctx context.Context, req *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error) {
	return c.resumeAuction.CallUnary(ctx, req)
}

func (c *roomServiceClient) CloseAuction(ctx context.Context, req *connect.Request[LifecycleRequest]) (*connect.Response[LifecycleResponse], error) {
	return c.closeAuction.CallUnary(ctx, req)
}
