package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
	"github.com/vibast-solutions/ms-go-billing/app/lock"
	"github.com/vibast-solutions/ms-go-billing/app/notification"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/config"
)

// memDB is an in-memory stand-in for the MySQL schema. Every read and write copies the row.
type memDB struct {
	mu sync.Mutex

	merchants        map[uint64]*entity.Merchant
	plans            map[uint64]*entity.Plan
	customers        map[uint64]*entity.Customer
	methods          map[uint64]*entity.PaymentMethod
	subscriptions    map[uint64]*entity.Subscription
	invoices         map[uint64]*entity.Invoice
	platformInvoices map[uint64]*entity.PlatformInvoice
	events           []*entity.InvoiceEvent
	callbacks        []*entity.WebhookCallback

	nextID uint64
}

func newMemDB() *memDB {
	return &memDB{
		merchants:        map[uint64]*entity.Merchant{},
		plans:            map[uint64]*entity.Plan{},
		customers:        map[uint64]*entity.Customer{},
		methods:          map[uint64]*entity.PaymentMethod{},
		subscriptions:    map[uint64]*entity.Subscription{},
		invoices:         map[uint64]*entity.Invoice{},
		platformInvoices: map[uint64]*entity.PlatformInvoice{},
		nextID:           1,
	}
}

func (db *memDB) repositories() Repositories {
	return Repositories{
		Merchants:        &memMerchants{db: db},
		Plans:            &memPlans{db: db},
		Customers:        &memCustomers{db: db},
		Subscriptions:    &memSubscriptions{db: db},
		Invoices:         &memInvoices{db: db},
		PlatformInvoices: &memPlatformInvoices{db: db},
		Callbacks:        &memCallbacks{db: db},
		Tx:               &memTx{db: db},
	}
}

func (db *memDB) id() uint64 {
	id := db.nextID
	db.nextID++
	return id
}

func (db *memDB) dueLocked(sub *entity.Subscription) *entity.DueSubscription {
	subCopy := *sub
	due := &entity.DueSubscription{Subscription: &subCopy}
	if item, ok := db.merchants[sub.MerchantID]; ok {
		copyItem := *item
		due.Merchant = &copyItem
	}
	if item, ok := db.plans[sub.PlanID]; ok {
		copyItem := *item
		due.Plan = &copyItem
	}
	if item, ok := db.customers[sub.CustomerID]; ok {
		copyItem := *item
		due.Customer = &copyItem
	}
	if sub.PaymentMethodID != nil {
		if item, ok := db.methods[*sub.PaymentMethodID]; ok {
			copyItem := *item
			due.PaymentMethod = &copyItem
		}
	}
	return due
}

func (db *memDB) subscription(id uint64) *entity.Subscription {
	db.mu.Lock()
	defer db.mu.Unlock()
	item, ok := db.subscriptions[id]
	if !ok {
		return nil
	}
	copyItem := *item
	return &copyItem
}

func (db *memDB) merchant(id uint64) *entity.Merchant {
	db.mu.Lock()
	defer db.mu.Unlock()
	item, ok := db.merchants[id]
	if !ok {
		return nil
	}
	copyItem := *item
	return &copyItem
}

func (db *memDB) invoicesOf(subscriptionID uint64) []*entity.Invoice {
	db.mu.Lock()
	defer db.mu.Unlock()
	items := make([]*entity.Invoice, 0)
	for _, item := range db.invoices {
		if item.SubscriptionID == subscriptionID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (db *memDB) platformInvoicesOf(merchantID uint64) []*entity.PlatformInvoice {
	db.mu.Lock()
	defer db.mu.Unlock()
	items := make([]*entity.PlatformInvoice, 0)
	for _, item := range db.platformInvoices {
		if item.MerchantID == merchantID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (db *memDB) eventTypes(invoiceID uint64) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	types := make([]string, 0)
	for _, event := range db.events {
		if event.InvoiceID == invoiceID {
			types = append(types, event.EventType)
		}
	}
	return types
}

func (db *memDB) putInvoice(invoice *entity.Invoice) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if invoice.ID == 0 {
		invoice.ID = db.id()
	}
	copyItem := *invoice
	db.invoices[invoice.ID] = &copyItem
}

type memMerchants struct{ db *memDB }

func (r *memMerchants) FindByID(_ context.Context, id uint64) (*entity.Merchant, error) {
	return r.db.merchant(id), nil
}

func (r *memMerchants) FindBySlug(_ context.Context, slug string) (*entity.Merchant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, item := range r.db.merchants {
		if item.Slug == slug {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *memMerchants) ListDueForPlatformBilling(_ context.Context, now time.Time, limit int32) ([]*entity.Merchant, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	items := make([]*entity.Merchant, 0)
	for _, item := range r.db.merchants {
		if item.SubscriptionStatus == entity.MerchantSubscriptionActive && item.NextPlatformBilling != nil && !item.NextPlatformBilling.After(now) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && len(items) > int(limit) {
		items = items[:limit]
	}
	return items, nil
}

func (r *memMerchants) UpdateGatewayConfig(_ context.Context, merchant *entity.Merchant) error {
	return r.store(merchant)
}

func (r *memMerchants) UpdatePlatformBilling(_ context.Context, merchant *entity.Merchant) error {
	return r.store(merchant)
}

func (r *memMerchants) store(merchant *entity.Merchant) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.merchants[merchant.ID]; !ok {
		return repository.ErrMerchantNotFound
	}
	copyItem := *merchant
	r.db.merchants[merchant.ID] = &copyItem
	return nil
}

type memPlans struct{ db *memDB }

func (r *memPlans) FindByID(_ context.Context, id uint64) (*entity.Plan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	item, ok := r.db.plans[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *memPlans) ListPublicByMerchant(_ context.Context, merchantID uint64) ([]*entity.Plan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	items := make([]*entity.Plan, 0)
	for _, item := range r.db.plans {
		if item.MerchantID == merchantID && item.IsActive && item.IsPublic {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Price < items[j].Price })
	return items, nil
}

func (r *memPlans) Create(_ context.Context, plan *entity.Plan) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	plan.ID = r.db.id()
	copyItem := *plan
	r.db.plans[plan.ID] = &copyItem
	return nil
}

func (r *memPlans) Update(_ context.Context, plan *entity.Plan) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	item, ok := r.db.plans[plan.ID]
	if !ok || item.MerchantID != plan.MerchantID {
		return repository.ErrPlanNotFound
	}
	copyItem := *plan
	r.db.plans[plan.ID] = &copyItem
	return nil
}

func (r *memPlans) Deactivate(_ context.Context, merchantID, id uint64, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	item, ok := r.db.plans[id]
	if !ok || item.MerchantID != merchantID {
		return repository.ErrPlanNotFound
	}
	item.IsActive = false
	item.UpdatedAt = now
	return nil
}

type memCustomers struct{ db *memDB }

func (r *memCustomers) FindByEmail(_ context.Context, merchantID uint64, email string) (*entity.Customer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, item := range r.db.customers {
		if item.MerchantID == merchantID && item.Email == email {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

type memSubscriptions struct{ db *memDB }

func (r *memSubscriptions) Update(_ context.Context, sub *entity.Subscription) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.subscriptions[sub.ID]; !ok {
		return repository.ErrSubscriptionNotFound
	}
	copyItem := *sub
	r.db.subscriptions[sub.ID] = &copyItem
	return nil
}

func (r *memSubscriptions) FindByID(_ context.Context, id uint64) (*entity.Subscription, error) {
	return r.db.subscription(id), nil
}

func (r *memSubscriptions) FindDueByID(_ context.Context, id uint64) (*entity.DueSubscription, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	item, ok := r.db.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return r.db.dueLocked(item), nil
}

func (r *memSubscriptions) ListDue(_ context.Context, now time.Time, limit int32) ([]*entity.DueSubscription, error) {
	return r.list(limit, func(sub *entity.Subscription) bool {
		return sub.Billable() && !sub.NextBillingDate.After(now)
	}), nil
}

func (r *memSubscriptions) ListRenewalWindow(_ context.Context, from, to time.Time, limit int32) ([]*entity.DueSubscription, error) {
	return r.list(limit, func(sub *entity.Subscription) bool {
		return sub.Status == entity.SubscriptionActive && !sub.CancelAtPeriodEnd &&
			sub.NextBillingDate.After(from) && !sub.NextBillingDate.After(to)
	}), nil
}

func (r *memSubscriptions) ListByCustomerEmail(_ context.Context, merchantID uint64, email string) ([]*entity.DueSubscription, error) {
	items := r.list(0, func(sub *entity.Subscription) bool {
		customer, ok := r.db.customers[sub.CustomerID]
		return sub.MerchantID == merchantID && ok && customer.Email == email
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Subscription.ID > items[j].Subscription.ID })
	return items, nil
}

func (r *memSubscriptions) ListActivePlans(_ context.Context, merchantID uint64) ([]*entity.Plan, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	plans := make([]*entity.Plan, 0)
	for _, sub := range r.db.subscriptions {
		if sub.MerchantID != merchantID || sub.Status != entity.SubscriptionActive {
			continue
		}
		if plan, ok := r.db.plans[sub.PlanID]; ok {
			copyItem := *plan
			plans = append(plans, &copyItem)
		}
	}
	return plans, nil
}

func (r *memSubscriptions) list(limit int32, match func(sub *entity.Subscription) bool) []*entity.DueSubscription {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	items := make([]*entity.DueSubscription, 0)
	for _, sub := range r.db.subscriptions {
		if match(sub) {
			items = append(items, r.db.dueLocked(sub))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Subscription.ID < items[j].Subscription.ID })
	if limit > 0 && len(items) > int(limit) {
		items = items[:limit]
	}
	return items
}

type memInvoices struct{ db *memDB }

func (r *memInvoices) FindByID(_ context.Context, id uint64) (*entity.Invoice, error) {
	return r.find(func(item *entity.Invoice) bool { return item.ID == id }), nil
}

func (r *memInvoices) FindByPeriod(_ context.Context, subscriptionID uint64, dueDate time.Time) (*entity.Invoice, error) {
	return r.find(func(item *entity.Invoice) bool {
		return item.SubscriptionID == subscriptionID && item.DueDate.Equal(dueDate)
	}), nil
}

func (r *memInvoices) FindByReference(_ context.Context, reference string) (*entity.Invoice, error) {
	return r.find(func(item *entity.Invoice) bool {
		return item.ReferenceCode != nil && *item.ReferenceCode == reference
	}), nil
}

func (r *memInvoices) ListStaleProcessing(_ context.Context, before time.Time, limit int32) ([]*entity.Invoice, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	items := make([]*entity.Invoice, 0)
	for _, item := range r.db.invoices {
		if item.Status == entity.InvoiceProcessing && !item.UpdatedAt.After(before) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if limit > 0 && len(items) > int(limit) {
		items = items[:limit]
	}
	return items, nil
}

func (r *memInvoices) ListRecentBySubscription(_ context.Context, subscriptionID uint64, limit int32) ([]*entity.Invoice, error) {
	items := r.db.invoicesOf(subscriptionID)
	sort.Slice(items, func(i, j int) bool { return items[i].DueDate.After(items[j].DueDate) })
	if limit > 0 && len(items) > int(limit) {
		items = items[:limit]
	}
	return items, nil
}

func (r *memInvoices) SumPaidByMerchant(_ context.Context, merchantID uint64) (int64, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var revenue, fees int64
	for _, item := range r.db.invoices {
		if item.MerchantID == merchantID && item.Status == entity.InvoicePaid {
			revenue += item.Amount
			fees += item.PlatformFee
		}
	}
	return revenue, fees, nil
}

func (r *memInvoices) find(match func(item *entity.Invoice) bool) *entity.Invoice {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, item := range r.db.invoices {
		if match(item) {
			copyItem := *item
			return &copyItem
		}
	}
	return nil
}

type memPlatformInvoices struct{ db *memDB }

func (r *memPlatformInvoices) Create(_ context.Context, invoice *entity.PlatformInvoice) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, item := range r.db.platformInvoices {
		if item.MerchantID == invoice.MerchantID && item.BillingPeriodStart.Equal(invoice.BillingPeriodStart) {
			return repository.ErrPlatformInvoiceAlreadyExists
		}
	}
	invoice.ID = r.db.id()
	copyItem := *invoice
	r.db.platformInvoices[invoice.ID] = &copyItem
	return nil
}

func (r *memPlatformInvoices) FindByPeriod(_ context.Context, merchantID uint64, periodStart time.Time) (*entity.PlatformInvoice, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, item := range r.db.platformInvoices {
		if item.MerchantID == merchantID && item.BillingPeriodStart.Equal(periodStart) {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

type memCallbacks struct{ db *memDB }

func (r *memCallbacks) Create(_ context.Context, callback *entity.WebhookCallback) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	callback.ID = r.db.id()
	copyItem := *callback
	r.db.callbacks = append(r.db.callbacks, &copyItem)
	return nil
}

type memTx struct{ db *memDB }

func (t *memTx) CreateInvoice(_ context.Context, invoice *entity.Invoice, event *entity.InvoiceEvent, assign func(*entity.Invoice)) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	for _, item := range t.db.invoices {
		if item.SubscriptionID == invoice.SubscriptionID && item.DueDate.Equal(invoice.DueDate) {
			return repository.ErrInvoiceAlreadyExists
		}
	}
	invoice.ID = t.db.id()
	if assign != nil {
		assign(invoice)
	}
	copyItem := *invoice
	t.db.invoices[invoice.ID] = &copyItem
	if event != nil {
		event.InvoiceID = invoice.ID
		copyEvent := *event
		t.db.events = append(t.db.events, &copyEvent)
	}
	return nil
}

func (t *memTx) SaveInvoiceTransition(_ context.Context, invoice *entity.Invoice, from entity.InvoiceStatus, subscription *entity.Subscription, event *entity.InvoiceEvent) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	stored, ok := t.db.invoices[invoice.ID]
	if !ok || stored.Status != from {
		return repository.ErrInvoiceStateChanged
	}
	copyItem := *invoice
	t.db.invoices[invoice.ID] = &copyItem
	if subscription != nil {
		copySub := *subscription
		t.db.subscriptions[subscription.ID] = &copySub
	}
	if event != nil {
		event.InvoiceID = invoice.ID
		copyEvent := *event
		t.db.events = append(t.db.events, &copyEvent)
	}
	return nil
}

func (t *memTx) SavePlatformTransition(_ context.Context, invoice *entity.PlatformInvoice, from entity.InvoiceStatus, merchant *entity.Merchant) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	stored, ok := t.db.platformInvoices[invoice.ID]
	if !ok || stored.Status != from {
		return repository.ErrInvoiceStateChanged
	}
	copyItem := *invoice
	t.db.platformInvoices[invoice.ID] = &copyItem
	if merchant != nil {
		copyMerchant := *merchant
		t.db.merchants[merchant.ID] = &copyMerchant
	}
	return nil
}

func (t *memTx) SaveSubscription(_ context.Context, customer *entity.Customer, method *entity.PaymentMethod, subscription *entity.Subscription) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if customer.ID == 0 {
		customer.ID = t.db.id()
	}
	copyCustomer := *customer
	t.db.customers[customer.ID] = &copyCustomer

	method.ID = t.db.id()
	method.CustomerID = customer.ID
	copyMethod := *method
	t.db.methods[method.ID] = &copyMethod

	subscription.ID = t.db.id()
	subscription.CustomerID = customer.ID
	subscription.PaymentMethodID = &method.ID
	copySub := *subscription
	t.db.subscriptions[subscription.ID] = &copySub
	return nil
}

// stubAdapter is a scripted gateway. The zero value approves every charge.
type stubAdapter struct {
	code entity.Gateway

	mu          sync.Mutex
	charges     []*gateway.ChargeInput
	chargeCreds []entity.GatewayCredentials
	declineWith string

	token      *gateway.TokenResult
	tokenized  int
	status     gateway.State
	event      *gateway.WebhookEvent
	webhookErr error

	// lookup answers reference queries; nil means the gateway has no such transaction.
	lookup        *gateway.TransactionLookup
	statusQueries []string
	lookups       []string
}

func (a *stubAdapter) Code() entity.Gateway { return a.code }

func (a *stubAdapter) Tokenize(context.Context, entity.GatewayCredentials, *gateway.CardData) *gateway.TokenResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokenized++
	if a.token != nil {
		return a.token
	}
	return &gateway.TokenResult{Success: true, Token: "12345", Brand: "VISA", LastFour: "4242"}
}

func (a *stubAdapter) Charge(_ context.Context, creds entity.GatewayCredentials, input *gateway.ChargeInput) *gateway.ChargeOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	copyInput := *input
	a.charges = append(a.charges, &copyInput)
	a.chargeCreds = append(a.chargeCreds, creds)
	if a.declineWith != "" {
		return &gateway.ChargeOutcome{
			TransactionID: "tx-declined",
			State:         gateway.StateDeclined,
			ErrorMessage:  a.declineWith,
			RawResponse:   []byte(`{"status":"DECLINED"}`),
		}
	}
	return &gateway.ChargeOutcome{
		Success:       true,
		TransactionID: "tx-" + input.ReferenceCode,
		State:         gateway.StateApproved,
		RawResponse:   []byte(`{"status":"APPROVED"}`),
	}
}

func (a *stubAdapter) TransactionStatus(_ context.Context, _ entity.GatewayCredentials, transactionID string) (gateway.State, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusQueries = append(a.statusQueries, transactionID)
	return a.status, nil
}

func (a *stubAdapter) TransactionByReference(_ context.Context, _ entity.GatewayCredentials, reference string) (*gateway.TransactionLookup, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lookups = append(a.lookups, reference)
	if a.lookup == nil {
		return nil, gateway.ErrTransactionNotFound
	}
	found := *a.lookup
	return &found, nil
}

// lookupless hides TransactionByReference from the dispatcher.
type lookupless struct {
	gateway.Adapter
}

func (a *stubAdapter) ParseWebhook(context.Context, entity.GatewayCredentials, *gateway.WebhookRequest) (*gateway.WebhookEvent, error) {
	if a.webhookErr != nil {
		return nil, a.webhookErr
	}
	if a.event == nil {
		return &gateway.WebhookEvent{}, nil
	}
	return a.event, nil
}

func (a *stubAdapter) tokenizeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokenized
}

func (a *stubAdapter) chargeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.charges)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []*notification.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, item *notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
	return nil
}

func (n *recordingNotifier) types() []notification.Type {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.Type, 0, len(n.items))
	for _, item := range n.items {
		out = append(out, item.Type)
	}
	return out
}

func (n *recordingNotifier) last() *notification.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) == 0 {
		return nil
	}
	return n.items[len(n.items)-1]
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (lock.ReleaseFunc, error) {
	return nil, lock.ErrNotAcquired
}

type fixture struct {
	db       *memDB
	adapter  *stubAdapter
	notifier *recordingNotifier
	svc      *BillingService
	now      time.Time
}

func newFixture() *fixture {
	f := &fixture{
		db:       newMemDB(),
		adapter:  &stubAdapter{code: entity.GatewayWompi},
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
	}
	dispatcher := gateway.NewDispatcher(gateway.NewRegistry(f.adapter), time.Second)
	f.svc = NewBillingService(
		f.db.repositories(),
		dispatcher,
		nil,
		f.notifier,
		nil,
		config.BillingConfig{Concurrency: 2},
		config.PlatformConfig{WompiPublicKey: "pub_platform", WompiPrivateKey: "prv_platform"},
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) seedMerchant() *entity.Merchant {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	merchant := &entity.Merchant{
		ID:                 f.db.id(),
		Slug:               "gratu",
		Name:               "Gratu",
		Email:              "billing@gratu.co",
		Gateway:            entity.GatewayWompi,
		Credentials:        &entity.WompiCredentials{PublicKey: "pub_test", PrivateKey: "prv_test", EventsSecret: "evt"},
		SubscriptionStatus: entity.MerchantSubscriptionActive,
		SubscriptionPrice:  50000,
	}
	f.db.merchants[merchant.ID] = merchant
	copyItem := *merchant
	return &copyItem
}

func (f *fixture) seedPlan(merchantID uint64, price int64, interval entity.Interval, trialDays int32) *entity.Plan {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	plan := &entity.Plan{
		ID:            f.db.id(),
		MerchantID:    merchantID,
		Name:          "Premium",
		Price:         price,
		Currency:      "COP",
		Interval:      interval,
		IntervalCount: 1,
		TrialDays:     trialDays,
		IsActive:      true,
		IsPublic:      true,
	}
	f.db.plans[plan.ID] = plan
	copyItem := *plan
	return &copyItem
}

// seedSubscription stores a subscription of the given status billing at next, together with
// its customer and card.
func (f *fixture) seedSubscription(merchant *entity.Merchant, plan *entity.Plan, status entity.SubscriptionStatus, next time.Time) *entity.Subscription {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	customer := &entity.Customer{
		ID:         f.db.id(),
		MerchantID: merchant.ID,
		Email:      "ana@example.com",
		Name:       "Ana",
	}
	f.db.customers[customer.ID] = customer

	method := &entity.PaymentMethod{
		ID:         f.db.id(),
		MerchantID: merchant.ID,
		CustomerID: customer.ID,
		Gateway:    merchant.Gateway,
		Token:      "98765",
		IsDefault:  true,
	}
	f.db.methods[method.ID] = method

	methodID := method.ID
	sub := &entity.Subscription{
		ID:                 f.db.id(),
		MerchantID:         merchant.ID,
		CustomerID:         customer.ID,
		PlanID:             plan.ID,
		PaymentMethodID:    &methodID,
		Status:             status,
		CurrentPeriodStart: next.AddDate(0, -1, 0),
		CurrentPeriodEnd:   next,
		NextBillingDate:    next,
	}
	f.db.subscriptions[sub.ID] = sub
	copyItem := *sub
	return &copyItem
}

func (f *fixture) seedDueSubscription() (*entity.Merchant, *entity.Plan, *entity.Subscription) {
	merchant := f.seedMerchant()
	plan := f.seedPlan(merchant.ID, 80000, entity.IntervalMonthly, 0)
	sub := f.seedSubscription(merchant, plan, entity.SubscriptionActive, f.now)
	return merchant, plan, sub
}

func decimalPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func (f *fixture) editMerchant(id uint64, edit func(merchant *entity.Merchant)) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	edit(f.db.merchants[id])
}

func (f *fixture) editSubscription(id uint64, edit func(sub *entity.Subscription)) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	edit(f.db.subscriptions[id])
}
