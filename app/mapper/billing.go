package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

func ChargeSummaryToView(summary service.ChargeSummary) types.ChargeSummary {
	return types.ChargeSummary{
		Processed:  summary.Processed,
		Successful: summary.Successful,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Anomalies:  summary.Anomalies,
	}
}

func CycleToResponse(summary *service.CycleSummary, now time.Time) *types.CycleResponse {
	return &types.CycleResponse{
		Success:             true,
		SubscriptionCharges: ChargeSummaryToView(summary.SubscriptionCharges),
		MerchantCharges:     ChargeSummaryToView(summary.MerchantCharges),
		Errors:              summary.Errors,
		Timestamp:           formatTime(now),
	}
}

func InvoiceToView(item *entity.Invoice) *types.InvoiceView {
	if item == nil {
		return nil
	}

	return &types.InvoiceView{
		Id:                   item.ID,
		SubscriptionId:       item.SubscriptionID,
		Amount:               item.Amount,
		Currency:             item.Currency,
		PlatformFee:          item.PlatformFee,
		NetAmount:            item.NetAmount,
		Status:               string(item.Status),
		Gateway:              string(item.Gateway),
		ReferenceCode:        derefString(item.ReferenceCode),
		GatewayTransactionId: derefString(item.GatewayTransactionID),
		AttemptCount:         item.AttemptCount,
		LastError:            derefString(item.LastError),
		DueDate:              formatTime(item.DueDate),
		NextRetryAt:          formatTimePtr(item.NextRetryAt),
		PaidAt:               formatTimePtr(item.PaidAt),
		BillingPeriodStart:   formatTime(item.BillingPeriodStart),
		BillingPeriodEnd:     formatTime(item.BillingPeriodEnd),
	}
}

func InvoicesToView(items []*entity.Invoice) []*types.InvoiceView {
	result := make([]*types.InvoiceView, 0, len(items))
	for _, item := range items {
		result = append(result, InvoiceToView(item))
	}
	return result
}

func SubscriptionToView(item *entity.Subscription) *types.SubscriptionView {
	if item == nil {
		return nil
	}

	return &types.SubscriptionView{
		Id:                 item.ID,
		MerchantId:         item.MerchantID,
		CustomerId:         item.CustomerID,
		PlanId:             item.PlanID,
		Status:             string(item.Status),
		CurrentPeriodStart: formatTime(item.CurrentPeriodStart),
		CurrentPeriodEnd:   formatTime(item.CurrentPeriodEnd),
		NextBillingDate:    formatTime(item.NextBillingDate),
		TrialEnd:           formatTimePtr(item.TrialEnd),
		CancelAtPeriodEnd:  item.CancelAtPeriodEnd,
		CancellationReason: derefString(item.CancellationReason),
		CancelledAt:        formatTimePtr(item.CancelledAt),
		BillingCycleCount:  item.BillingCycleCount,
	}
}

func PlanToView(item *entity.Plan) *types.PlanView {
	if item == nil {
		return nil
	}

	return &types.PlanView{
		Id:            item.ID,
		Name:          item.Name,
		Description:   derefString(item.Description),
		Price:         item.Price,
		Currency:      item.Currency,
		Interval:      string(item.Interval),
		IntervalCount: item.IntervalCount,
		TrialDays:     item.TrialDays,
		IsActive:      item.IsActive,
		IsPublic:      item.IsPublic,
	}
}

func PlanToResponse(message string, item *entity.Plan) *types.PlanResponse {
	return &types.PlanResponse{Message: message, Plan: PlanToView(item)}
}

func PlansToView(items []*entity.Plan) []*types.PlanView {
	result := make([]*types.PlanView, 0, len(items))
	for _, item := range items {
		result = append(result, PlanToView(item))
	}
	return result
}

func CustomerToView(item *entity.Customer) *types.CustomerView {
	if item == nil {
		return nil
	}

	return &types.CustomerView{
		Id:    item.ID,
		Email: item.Email,
		Name:  item.Name,
		Phone: derefString(item.Phone),
	}
}

// PaymentMethodToView never exposes the gateway token.
func PaymentMethodToView(item *entity.PaymentMethod) *types.PaymentMethodView {
	if item == nil {
		return nil
	}

	return &types.PaymentMethodView{
		Id:           item.ID,
		Gateway:      string(item.Gateway),
		CardLastFour: derefString(item.CardLastFour),
		CardBrand:    derefString(item.CardBrand),
		CardExpMonth: derefString(item.CardExpMonth),
		CardExpYear:  derefString(item.CardExpYear),
	}
}

func ChargeOutcomeToResponse(result *service.ChargeOutcome) *types.ChargeSubscriptionResponse {
	return &types.ChargeSubscriptionResponse{
		Outcome: result.Outcome,
		Invoice: InvoiceToView(result.Invoice),
	}
}

func ManualChargeToResponse(result *service.ManualChargeResult) *types.ManualChargeResponse {
	charge := result.Charge
	return &types.ManualChargeResponse{
		Success:       charge.Success,
		TransactionId: charge.TransactionID,
		Status:        string(charge.State),
		Error:         charge.Error,
		Gateway:       string(charge.Gateway),
		Amount:        charge.Amount,
		Currency:      charge.Currency,
		ReferenceCode: result.ReferenceCode,
		PlatformFee:   result.PlatformFee,
		NetAmount:     result.NetAmount,
		Timestamp:     formatTime(charge.Timestamp),
	}
}

func WebhookToResponse(result *service.WebhookResult) *types.WebhookResponse {
	return &types.WebhookResponse{
		Received:      true,
		Status:        result.Status,
		InvoiceId:     result.InvoiceID,
		InvoiceStatus: string(result.InvoiceStatus),
	}
}

func SubscribeToResponse(result *service.SubscribeResult) *types.SubscribeResponse {
	return &types.SubscribeResponse{
		Subscription:  SubscriptionToView(result.Subscription),
		Customer:      CustomerToView(result.Customer),
		Plan:          PlanToView(result.Plan),
		PaymentMethod: PaymentMethodToView(result.PaymentMethod),
	}
}

func ManageToResponse(result *service.ManageResult) *types.ManageSubscriptionResponse {
	return &types.ManageSubscriptionResponse{
		Message:      result.Message,
		Subscription: SubscriptionToView(result.Subscription),
	}
}

func SubscriptionDetailsToResponse(details *service.SubscriptionDetails) *types.SubscriptionDetailsResponse {
	return &types.SubscriptionDetailsResponse{
		Subscription:  SubscriptionToView(details.Due.Subscription),
		Plan:          PlanToView(details.Due.Plan),
		Customer:      CustomerToView(details.Due.Customer),
		PaymentMethod: PaymentMethodToView(details.Due.PaymentMethod),
		Invoices:      InvoicesToView(details.Invoices),
	}
}

func PlansToResponse(merchant *entity.Merchant, plans []*entity.Plan) *types.PlansResponse {
	return &types.PlansResponse{
		MerchantId:   merchant.ID,
		MerchantName: merchant.Name,
		Plans:        PlansToView(plans),
	}
}

func CustomerSubscriptionToResponse(found *service.CustomerSubscription) *types.CustomerSubscriptionResponse {
	resp := &types.CustomerSubscriptionResponse{
		HasSubscription: found.HasSubscription,
		IsActive:        found.IsActive,
		IsTrial:         found.IsTrial,
		IsPastDue:       found.IsPastDue,
	}
	if found.Due != nil {
		resp.Subscription = SubscriptionToView(found.Due.Subscription)
		resp.Plan = PlanToView(found.Due.Plan)
	}
	return resp
}

func GatewayConfigToResponse(view *service.GatewayConfigView) *types.GatewayConfigResponse {
	return &types.GatewayConfigResponse{
		Gateway:    string(view.Gateway),
		Configured: view.Configured,
		Config:     view.Config,
	}
}

func MerchantStatsToResponse(stats *service.MerchantStats) *types.MerchantStatsResponse {
	return &types.MerchantStatsResponse{
		ActiveSubscriptions: stats.ActiveSubscriptions,
		Mrr:                 stats.MRR.StringFixed(0),
		Currency:            stats.Currency,
		TotalRevenue:        stats.TotalRevenue,
		PlatformFees:        stats.PlatformFees,
		NetRevenue:          stats.NetRevenue,
	}
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return formatTime(*value)
}
