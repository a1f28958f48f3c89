package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type billingService interface {
	RunBillingCycle(ctx context.Context, trigger string) (*service.CycleSummary, error)
	ChargeSubscription(ctx context.Context, subscriptionID uint64) (*service.ChargeOutcome, error)
	GetSubscription(ctx context.Context, merchantSlug string, subscriptionID uint64) (*service.SubscriptionDetails, error)
	ManageSubscription(ctx context.Context, req service.ManageSubscriptionRequest) (*service.ManageResult, error)
}

type Server struct {
	billingService billingService
}

func NewServer(billingService billingService) *Server {
	return &Server{billingService: billingService}
}

func (s *Server) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return respond(&types.HealthResponse{Status: "ok"})
}

func (s *Server) RunBillingCycle(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	summary, err := s.billingService.RunBillingCycle(ctx, "grpc")
	if err != nil {
		loggerWithContext(ctx).WithError(err).Error("Billing cycle failed")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return respond(mapper.CycleToResponse(summary, time.Now()))
}

func (s *Server) ChargeSubscription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.ChargeSubscriptionRequest
	if err := mapper.StructToRequest(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.billingService.ChargeSubscription(ctx, req.GetSubscriptionId())
	if err != nil {
		return nil, serviceStatus(ctx, err, "Charge subscription failed")
	}

	return respond(mapper.ChargeOutcomeToResponse(result))
}

func (s *Server) GetSubscription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.SubscriptionRequest
	if err := mapper.StructToRequest(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	details, err := s.billingService.GetSubscription(ctx, req.GetMerchantSlug(), req.GetSubscriptionId())
	if err != nil {
		return nil, serviceStatus(ctx, err, "Get subscription failed")
	}

	return respond(mapper.SubscriptionDetailsToResponse(details))
}

func (s *Server) ManageSubscription(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.ManageSubscriptionRequest
	if err := mapper.StructToRequest(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.billingService.ManageSubscription(ctx, &req)
	if err != nil {
		return nil, serviceStatus(ctx, err, "Manage subscription failed")
	}

	return respond(mapper.ManageToResponse(result))
}

func serviceStatus(ctx context.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrBusy):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, service.ErrMerchantNotFound),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrGatewayUnsupported),
		errors.Is(err, service.ErrGatewayNotConfigured):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		loggerWithContext(ctx).WithError(err).Error(logMessage)
		return status.Error(codes.Internal, "internal server error")
	}
}

func respond(resp interface{}) (*structpb.Struct, error) {
	out, err := mapper.ResponseToStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}
