//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/adapter"
	"vendor-billing/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

// fixedNow is the wall clock every unit test runs at.
var fixedNow = time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func strPtr(s string) *string { return &s }

// =============================
// Repositories
// =============================

// ---- MockSubscriptionRepo ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscription

	SaveFunc        func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	MarkExpiredFunc func(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error)
	FindCandidates  error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) put(s *model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.data[s.ID] = &cp
}

func (m *MockSubscriptionRepo) get(id string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *MockSubscriptionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// renewalsOf returns every row linked to prevID.
func (m *MockSubscriptionRepo) renewalsOf(prevID string) []*model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.data {
		if s.PreviousSubscriptionID != nil && *s.PreviousSubscriptionID == prevID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, s); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// mirror the partial unique index on open renewals
	if s.PreviousSubscriptionID != nil && s.IsOpen() {
		for _, o := range m.data {
			if o.ID != s.ID && o.PreviousSubscriptionID != nil && *o.PreviousSubscriptionID == *s.PreviousSubscriptionID && o.IsOpen() {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *s
	m.data[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	if s := m.get(id); s != nil {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindCurrentByVendor(ctx context.Context, tx repository.Tx, vendorID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Subscription
	for _, s := range m.data {
		if s.VendorID != vendorID || s.Status != model.SubscriptionStatusActive {
			continue
		}
		if best == nil || s.StartDate.Before(best.StartDate) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MockSubscriptionRepo) ListByVendor(ctx context.Context, tx repository.Tx, vendorID string, limit, offset int) ([]*model.Subscription, error) {
	return m.filter(func(s *model.Subscription) bool { return s.VendorID == vendorID }), nil
}

func (m *MockSubscriptionRepo) FindActiveEndedBefore(ctx context.Context, tx repository.Tx, before time.Time) ([]*model.Subscription, error) {
	if m.FindCandidates != nil {
		return nil, m.FindCandidates
	}
	return m.filter(func(s *model.Subscription) bool {
		return s.Status == model.SubscriptionStatusActive && s.EndDate.Before(before)
	}), nil
}

func (m *MockSubscriptionRepo) FindActiveEndingBetween(ctx context.Context, tx repository.Tx, from, to, notifiedBefore time.Time) ([]*model.Subscription, error) {
	if m.FindCandidates != nil {
		return nil, m.FindCandidates
	}
	return m.filter(func(s *model.Subscription) bool {
		if s.Status != model.SubscriptionStatusActive || s.EndDate.Before(from) || s.EndDate.After(to) {
			return false
		}
		return s.LastRenewalNotification == nil || s.LastRenewalNotification.Before(notifiedBefore)
	}), nil
}

func (m *MockSubscriptionRepo) FindAutoRenewCandidates(ctx context.Context, tx repository.Tx, from, to time.Time) ([]*model.Subscription, error) {
	if m.FindCandidates != nil {
		return nil, m.FindCandidates
	}
	return m.filter(func(s *model.Subscription) bool {
		return s.Status == model.SubscriptionStatusActive && s.AutoRenew && !s.EndDate.Before(from) && !s.EndDate.After(to)
	}), nil
}

func (m *MockSubscriptionRepo) FindOpenRenewal(ctx context.Context, tx repository.Tx, prevID string) (*model.Subscription, error) {
	for _, s := range m.renewalsOf(prevID) {
		if s.IsOpen() {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	if m.MarkExpiredFunc != nil {
		return m.MarkExpiredFunc(ctx, tx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok || s.Status != model.SubscriptionStatusActive {
		return false, nil
	}
	s.Status = model.SubscriptionStatusExpired
	s.UpdatedAt = at
	return true, nil
}

func (m *MockSubscriptionRepo) StampReminder(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.LastRenewalNotification = &at
	return nil
}

func (m *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range m.data {
		out[s.Status]++
	}
	return out, nil
}

func (m *MockSubscriptionRepo) filter(keep func(*model.Subscription) bool) []*model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.data {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out
}

// ---- MockTransactionRepo ----

type MockTransactionRepo struct {
	mu   sync.Mutex
	data map[string]*model.PaymentTransaction

	SaveFunc func(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error
}

var _ repository.PaymentTransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{data: make(map[string]*model.PaymentTransaction)}
}

func (m *MockTransactionRepo) all() []*model.PaymentTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.PaymentTransaction, 0, len(m.data))
	for _, t := range m.data {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (m *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, tx, t); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.data[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepo) FindByCheckoutRequestID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	for _, t := range m.all() {
		if t.CheckoutRequestID() == id {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) FindBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.PaymentTransaction, error) {
	for _, t := range m.all() {
		if t.SubscriptionID == subscriptionID {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) (bool, error) {
	return m.resolve(t)
}

func (m *MockTransactionRepo) FailIfPending(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) (bool, error) {
	return m.resolve(t)
}

func (m *MockTransactionRepo) resolve(t *model.PaymentTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[t.ID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if cur.Status != model.TransactionStatusPending {
		return false, nil
	}
	cp := *t
	m.data[t.ID] = &cp
	return true, nil
}

func (m *MockTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.PaymentTransaction, error) {
	var out []*model.PaymentTransaction
	for _, t := range m.all() {
		if t.IsPending() && t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) SumCompletedSince(ctx context.Context, tx repository.Tx, since time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range m.all() {
		if t.Status == model.TransactionStatusCompleted && !t.UpdatedAt.Before(since) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

// ---- MockPackageRepo ----

type MockPackageRepo struct {
	mu   sync.Mutex
	data map[string]*model.Package
}

var _ repository.PackageRepository = (*MockPackageRepo)(nil)

func NewMockPackageRepo() *MockPackageRepo {
	return &MockPackageRepo{data: make(map[string]*model.Package)}
}

func (m *MockPackageRepo) Save(ctx context.Context, tx repository.Tx, p *model.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.data[p.ID] = &cp
	return nil
}

func (m *MockPackageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPackageRepo) FindActiveByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	p, err := m.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (m *MockPackageRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Package
	for _, p := range m.data {
		if p.IsActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- MockVendorRepo ----

type MockVendorRepo struct {
	mu   sync.Mutex
	data map[string]*model.Vendor
}

var _ repository.VendorRepository = (*MockVendorRepo)(nil)

func NewMockVendorRepo() *MockVendorRepo {
	return &MockVendorRepo{data: make(map[string]*model.Vendor)}
}

func (m *MockVendorRepo) Save(ctx context.Context, tx repository.Tx, v *model.Vendor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.data[v.ID] = &cp
	return nil
}

func (m *MockVendorRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MockVendorRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Vendor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.data {
		if v.Email == email {
			cp := *v
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockVendorRepo) SaveCardToken(ctx context.Context, tx repository.Tx, vendorID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[vendorID]
	if !ok {
		return domain.ErrNotFound
	}
	v.CardToken = token
	return nil
}

// ---- MockNotificationLog ----

type MockNotificationLog struct {
	mu    sync.Mutex
	Saved []repository.NotificationKind
}

var _ repository.NotificationLogRepository = (*MockNotificationLog)(nil)

func (m *MockNotificationLog) Save(ctx context.Context, tx repository.Tx, subscriptionID, vendorID string, kind repository.NotificationKind, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saved = append(m.Saved, kind)
	return nil
}

func (m *MockNotificationLog) CountSince(ctx context.Context, tx repository.Tx, kind repository.NotificationKind, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.Saved {
		if k == kind {
			n++
		}
	}
	return n, nil
}

// ---- MockTxManager ----

// MockTxManager runs fn directly; the in-memory repos ignore tx.
type MockTxManager struct {
	Calls int
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.Calls++
	return fn(ctx, nil)
}

// =============================
// Adapters
// =============================

type MockMpesa struct {
	mu       sync.Mutex
	Requests []adapter.MobileMoneyRequest

	InitiateFunc func(ctx context.Context, req adapter.MobileMoneyRequest) (adapter.MobileMoneyResult, error)
	QueryFunc    func(ctx context.Context, checkoutRequestID string) (adapter.MobileMoneyStatus, error)
}

var _ adapter.MobileMoneyGateway = (*MockMpesa)(nil)

func (m *MockMpesa) InitiateMobileMoneyPayment(ctx context.Context, req adapter.MobileMoneyRequest) (adapter.MobileMoneyResult, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	return adapter.MobileMoneyResult{
		MerchantRequestID: "mr-" + req.TransactionID,
		CheckoutRequestID: "ws_CO_" + req.TransactionID,
		ResponseCode:      "0",
	}, nil
}

func (m *MockMpesa) QueryMobileMoneyPayment(ctx context.Context, checkoutRequestID string) (adapter.MobileMoneyStatus, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, checkoutRequestID)
	}
	return adapter.MobileMoneyStatus{Outcome: adapter.MobileMoneyPending}, nil
}

type MockCards struct {
	mu      sync.Mutex
	Charges []adapter.CardChargeRequest

	ChargeFunc func(ctx context.Context, req adapter.CardChargeRequest) (adapter.CardChargeResult, error)
}

var _ adapter.CardProcessor = (*MockCards)(nil)

func (m *MockCards) ProcessCardCharge(ctx context.Context, req adapter.CardChargeRequest) (adapter.CardChargeResult, error) {
	m.mu.Lock()
	m.Charges = append(m.Charges, req)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return adapter.CardChargeResult{
		Approved:      true,
		TransactionID: "ch_123",
		Last4:         "4242",
		Brand:         "visa",
		ExpiryMonth:   12,
		ExpiryYear:    2030,
	}, nil
}

type MockNotifier struct {
	mu        sync.Mutex
	Reminders []adapter.LifecycleNotice
	Expiries  []adapter.LifecycleNotice

	Err error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) SendRenewalReminder(ctx context.Context, n adapter.LifecycleNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Reminders = append(m.Reminders, n)
	return nil
}

func (m *MockNotifier) SendExpirationNotice(ctx context.Context, n adapter.LifecycleNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Expiries = append(m.Expiries, n)
	return nil
}

// =============================
// Fixtures
// =============================

type fixture struct {
	subs     *MockSubscriptionRepo
	txns     *MockTransactionRepo
	packages *MockPackageRepo
	vendors  *MockVendorRepo
	notices  *MockNotificationLog
	tm       *MockTxManager
	mpesa    *MockMpesa
	cards    *MockCards
	notifier *MockNotifier
}

func newFixture() *fixture {
	f := &fixture{
		subs:     NewMockSubscriptionRepo(),
		txns:     NewMockTransactionRepo(),
		packages: NewMockPackageRepo(),
		vendors:  NewMockVendorRepo(),
		notices:  &MockNotificationLog{},
		tm:       NewMockTxManager(),
		mpesa:    &MockMpesa{},
		cards:    &MockCards{},
		notifier: &MockNotifier{},
	}
	ctx := context.Background()
	_ = f.packages.Save(ctx, nil, &model.Package{
		ID: "pkg-basic", Name: "Basic", Price: decimal.NewFromInt(1500), Currency: "KES",
		Duration: 1, DurationUnit: model.DurationUnitMonth, ProductLimit: 20, IsActive: true,
	})
	_ = f.packages.Save(ctx, nil, &model.Package{
		ID: "pkg-retired", Name: "Legacy", Price: decimal.NewFromInt(900), Currency: "KES",
		Duration: 30, DurationUnit: model.DurationUnitDay, IsActive: false,
	})
	_ = f.vendors.Save(ctx, nil, &model.Vendor{
		ID: "vendor-1", Email: "shop@example.co.ke", DisplayName: "Mama Mboga", PhoneNumber: "0712345678",
		Role: model.RoleMerchant, CardToken: "tok_saved", Locale: "en",
	})
	_ = f.vendors.Save(ctx, nil, &model.Vendor{ID: "admin-1", Email: "ops@example.co.ke", Role: model.RoleAdmin})
	return f
}

// activeSub stores an active, paid subscription of vendor-1 ending at end.
func (f *fixture) activeSub(id string, end time.Time, method model.PaymentMethod, autoRenew bool) *model.Subscription {
	s := &model.Subscription{
		ID:            id,
		VendorID:      "vendor-1",
		PackageID:     "pkg-basic",
		PackageName:   "Basic",
		PackagePrice:  decimal.NewFromInt(1500),
		Currency:      "KES",
		StartDate:     end.AddDate(0, -1, 0),
		EndDate:       end,
		Status:        model.SubscriptionStatusActive,
		PaymentStatus: model.PaymentStatusPaid,
		PaymentMethod: method,
		AutoRenew:     autoRenew,
	}
	f.subs.put(s)
	return s
}

var merchant = model.Actor{UserID: "vendor-1", Role: model.RoleMerchant}
var admin = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}
