package controller

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

type billingService interface {
	RunBillingCycle(ctx context.Context, trigger string) (*service.CycleSummary, error)
	ChargeSubscription(ctx context.Context, subscriptionID uint64) (*service.ChargeOutcome, error)
	ManualCharge(ctx context.Context, req service.ManualChargeRequest) (*service.ManualChargeResult, error)
	HandleWebhook(ctx context.Context, req service.WebhookRequest) (*service.WebhookResult, error)
	Subscribe(ctx context.Context, req service.SubscribeRequest) (*service.SubscribeResult, error)
	ManageSubscription(ctx context.Context, req service.ManageSubscriptionRequest) (*service.ManageResult, error)
	GetSubscription(ctx context.Context, merchantSlug string, subscriptionID uint64) (*service.SubscriptionDetails, error)
	FindCustomerSubscription(ctx context.Context, merchantSlug, email string) (*service.CustomerSubscription, error)
	ListPlans(ctx context.Context, merchantSlug string) (*entity.Merchant, []*entity.Plan, error)
	CreatePlan(ctx context.Context, req service.CreatePlanRequest) (*entity.Plan, error)
	UpdatePlan(ctx context.Context, req service.UpdatePlanRequest) (*entity.Plan, error)
	DeactivatePlan(ctx context.Context, merchantSlug string, planID uint64) (*entity.Plan, error)
	UpdateGatewayConfig(ctx context.Context, req service.GatewayConfigRequest) (*service.GatewayConfigView, error)
	GetGatewayConfig(ctx context.Context, merchantSlug string) (*service.GatewayConfigView, error)
	GetMerchantStats(ctx context.Context, merchantSlug string) (*service.MerchantStats, error)
}

type BillingController struct {
	billingService  billingService
	cronSecret      string
	trustCronHeader bool
	logger          logrus.FieldLogger
}

func NewBillingController(billingService billingService, cronSecret string, trustCronHeader bool) *BillingController {
	return &BillingController{
		billingService:  billingService,
		cronSecret:      cronSecret,
		trustCronHeader: trustCronHeader,
		logger:          factory.NewModuleLogger("billing-controller"),
	}
}

func (c *BillingController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *BillingController) RunBillingCycle(ctx echo.Context) error {
	req := types.NewRunBillingCycleRequestFromContext(ctx)
	if !c.cronAuthorized(req) {
		return c.writeError(ctx, http.StatusUnauthorized, "unauthorized")
	}

	summary, err := c.billingService.RunBillingCycle(ctx.Request().Context(), req.GetTrigger())
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Billing cycle failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.CycleToResponse(summary, time.Now()))
}

func (c *BillingController) cronAuthorized(req *types.RunBillingCycleRequest) bool {
	if c.cronSecret != "" && req.GetBearerToken() != "" &&
		subtle.ConstantTimeCompare([]byte(req.GetBearerToken()), []byte(c.cronSecret)) == 1 {
		return true
	}
	return c.trustCronHeader && req.GetCronHeader()
}

func (c *BillingController) ChargeSubscription(ctx echo.Context) error {
	req, err := types.NewChargeSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.billingService.ChargeSubscription(ctx.Request().Context(), req.GetSubscriptionId())
	if err != nil {
		return c.handleServiceError(ctx, err, "Charge subscription failed")
	}

	return ctx.JSON(http.StatusOK, mapper.ChargeOutcomeToResponse(result))
}

func (c *BillingController) ManualCharge(ctx echo.Context) error {
	req, err := types.NewManualChargeRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.billingService.ManualCharge(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Manual charge failed")
	}

	resp := mapper.ManualChargeToResponse(result)
	if !resp.Success {
		return ctx.JSON(http.StatusBadRequest, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (c *BillingController) HandleWebhook(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.billingService.HandleWebhook(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Handle webhook failed")
	}

	return ctx.JSON(http.StatusOK, mapper.WebhookToResponse(result))
}

func (c *BillingController) Subscribe(ctx echo.Context) error {
	req, err := types.NewSubscribeRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.billingService.Subscribe(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Subscribe failed")
	}

	return ctx.JSON(http.StatusCreated, mapper.SubscribeToResponse(result))
}

func (c *BillingController) ListPlans(ctx echo.Context) error {
	req := types.NewMerchantRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	merchant, plans, err := c.billingService.ListPlans(ctx.Request().Context(), req.GetMerchantSlug())
	if err != nil {
		return c.handleServiceError(ctx, err, "List plans failed")
	}

	return ctx.JSON(http.StatusOK, mapper.PlansToResponse(merchant, plans))
}

func (c *BillingController) CreatePlan(ctx echo.Context) error {
	req, err := types.NewCreatePlanRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	plan, err := c.billingService.CreatePlan(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Create plan failed")
	}

	return ctx.JSON(http.StatusCreated, mapper.PlanToResponse("plan created", plan))
}

func (c *BillingController) UpdatePlan(ctx echo.Context) error {
	req, err := types.NewUpdatePlanRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	plan, err := c.billingService.UpdatePlan(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Update plan failed")
	}

	return ctx.JSON(http.StatusOK, mapper.PlanToResponse("plan updated", plan))
}

func (c *BillingController) DeactivatePlan(ctx echo.Context) error {
	req, err := types.NewPlanRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	plan, err := c.billingService.DeactivatePlan(ctx.Request().Context(), req.GetMerchantSlug(), req.GetPlanId())
	if err != nil {
		return c.handleServiceError(ctx, err, "Deactivate plan failed")
	}

	return ctx.JSON(http.StatusOK, mapper.PlanToResponse("plan deactivated", plan))
}

func (c *BillingController) GetSubscription(ctx echo.Context) error {
	req, err := types.NewSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	details, err := c.billingService.GetSubscription(ctx.Request().Context(), req.GetMerchantSlug(), req.GetSubscriptionId())
	if err != nil {
		return c.handleServiceError(ctx, err, "Get subscription failed")
	}

	return ctx.JSON(http.StatusOK, mapper.SubscriptionDetailsToResponse(details))
}

func (c *BillingController) ManageSubscription(ctx echo.Context) error {
	req, err := types.NewManageSubscriptionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.billingService.ManageSubscription(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Manage subscription failed")
	}

	return ctx.JSON(http.StatusOK, mapper.ManageToResponse(result))
}

func (c *BillingController) FindCustomerSubscription(ctx echo.Context) error {
	req := types.NewCustomerSubscriptionRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	found, err := c.billingService.FindCustomerSubscription(ctx.Request().Context(), req.GetMerchantSlug(), req.GetEmail())
	if err != nil {
		return c.handleServiceError(ctx, err, "Find customer subscription failed")
	}

	return ctx.JSON(http.StatusOK, mapper.CustomerSubscriptionToResponse(found))
}

func (c *BillingController) UpdateGatewayConfig(ctx echo.Context) error {
	req, err := types.NewGatewayConfigRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	view, err := c.billingService.UpdateGatewayConfig(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Update gateway config failed")
	}

	return ctx.JSON(http.StatusOK, mapper.GatewayConfigToResponse(view))
}

func (c *BillingController) GetGatewayConfig(ctx echo.Context) error {
	req := types.NewMerchantRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	view, err := c.billingService.GetGatewayConfig(ctx.Request().Context(), req.GetMerchantSlug())
	if err != nil {
		return c.handleServiceError(ctx, err, "Get gateway config failed")
	}

	return ctx.JSON(http.StatusOK, mapper.GatewayConfigToResponse(view))
}

func (c *BillingController) GetMerchantStats(ctx echo.Context) error {
	req := types.NewMerchantRequestFromContext(ctx)
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	stats, err := c.billingService.GetMerchantStats(ctx.Request().Context(), req.GetMerchantSlug())
	if err != nil {
		return c.handleServiceError(ctx, err, "Get merchant stats failed")
	}

	return ctx.JSON(http.StatusOK, mapper.MerchantStatsToResponse(stats))
}

func (c *BillingController) handleServiceError(ctx echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrBusy):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrMerchantNotFound),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrSubscriptionNotFound):
		return c.writeError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrGatewayUnsupported),
		errors.Is(err, service.ErrGatewayNotConfigured),
		errors.Is(err, service.ErrInvalidGatewayConfig),
		errors.Is(err, service.ErrTokenizationFailed),
		errors.Is(err, service.ErrCallbackRejected):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *BillingController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
