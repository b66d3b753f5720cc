//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"gym-subscription-platform/internal/domain"
	"gym-subscription-platform/internal/domain/model"
	"gym-subscription-platform/internal/domain/ports/adapter"
	"gym-subscription-platform/internal/domain/ports/repository"
)

// ---- Mock PurchaseRepository ----

type MockPurchaseRepo struct {
	mu   sync.Mutex
	data map[string]*model.PlanPurchase

	SaveFunc                       func(ctx context.Context, tx repository.Tx, p *model.PlanPurchase) error
	FindBlockingByUserFunc         func(ctx context.Context, tx repository.Tx, userID string) (*model.PlanPurchase, error)
	FindLatestByUserAndPlanFunc    func(ctx context.Context, tx repository.Tx, userID, planName string) (*model.PlanPurchase, error)
	MarkPaidIfPendingFunc          func(ctx context.Context, tx repository.Tx, id string, paidAt time.Time) (bool, error)
	ListRefundedWithoutPaymentFunc func(ctx context.Context, tx repository.Tx, limit int) ([]*model.PlanPurchase, error)
	LockUserFunc                   func(ctx context.Context, tx repository.Tx, userID string) error

	LockedUsers []string
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{data: map[string]*model.PlanPurchase{}}
}

func (r *MockPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.PlanPurchase) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPurchaseRepo) FindBlockingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PlanPurchase, error) {
	if r.FindBlockingByUserFunc != nil {
		return r.FindBlockingByUserFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.UserID == userID && p.Status.Blocking() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPurchaseRepo) FindLatestByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planName string) (*model.PlanPurchase, error) {
	if r.FindLatestByUserAndPlanFunc != nil {
		return r.FindLatestByUserAndPlanFunc(ctx, tx, userID, planName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.PlanPurchase
	for _, p := range r.data {
		if p.UserID != userID || p.PlanName != planName {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MockPurchaseRepo) MarkPaidIfPending(ctx context.Context, tx repository.Tx, id string, paidAt time.Time) (bool, error) {
	if r.MarkPaidIfPendingFunc != nil {
		return r.MarkPaidIfPendingFunc(ctx, tx, id, paidAt)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PurchaseStatusPending {
		return false, nil
	}
	p.Status = model.PurchaseStatusPaid
	p.PaidAt = &paidAt
	p.UpdatedAt = paidAt
	return true, nil
}

func (r *MockPurchaseRepo) MarkRefundedByUserAndPlan(ctx context.Context, tx repository.Tx, userID, planName string, refundedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.data {
		if p.UserID == userID && p.PlanName == planName && p.Status.Blocking() {
			p.Status = model.PurchaseStatusRefunded
			p.RefundedAt = &refundedAt
			p.UpdatedAt = refundedAt
			n++
		}
	}
	return n, nil
}

func (r *MockPurchaseRepo) ListRefundedWithoutPayment(ctx context.Context, tx repository.Tx, limit int) ([]*model.PlanPurchase, error) {
	if r.ListRefundedWithoutPaymentFunc != nil {
		return r.ListRefundedWithoutPaymentFunc(ctx, tx, limit)
	}
	return nil, nil
}

func (r *MockPurchaseRepo) LockUser(ctx context.Context, tx repository.Tx, userID string) error {
	if r.LockUserFunc != nil {
		return r.LockUserFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LockedUsers = append(r.LockedUsers, userID)
	return nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.PaymentRecord

	SaveFunc               func(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error
	FindByPurchaseIDFunc   func(ctx context.Context, tx repository.Tx, purchaseID string) (*model.PaymentRecord, error)
	FindBlockingByUserFunc func(ctx context.Context, tx repository.Tx, userID string) (*model.PaymentRecord, error)
	VisibleIDsFunc         func(ctx context.Context, tx repository.Tx, ids []string) (map[string]bool, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.PaymentRecord{}}
}

func (r *MockPaymentRepo) Seed(p *model.PaymentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
}

func (r *MockPaymentRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByPurchaseID(ctx context.Context, tx repository.Tx, purchaseID string) (*model.PaymentRecord, error) {
	if r.FindByPurchaseIDFunc != nil {
		return r.FindByPurchaseIDFunc(ctx, tx, purchaseID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.PurchaseID != nil && *p.PurchaseID == purchaseID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindBlockingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PaymentRecord, error) {
	if r.FindBlockingByUserFunc != nil {
		return r.FindBlockingByUserFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.UserID == userID && p.Purpose == model.PurposePricingPlan && p.Status.Blocking() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) MarkRefunded(ctx context.Context, tx repository.Tx, id string, refund model.RefundInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = model.PaymentStatusRefunded
	ri := refund
	p.Refund = &ri
	return nil
}

func (r *MockPaymentRepo) VisibleIDs(ctx context.Context, tx repository.Tx, ids []string) (map[string]bool, error) {
	if r.VisibleIDsFunc != nil {
		return r.VisibleIDsFunc(ctx, tx, ids)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if p, ok := r.data[id]; ok && p.Visible {
			out[id] = true
		}
	}
	return out, nil
}

// ---- Mock WalletRepository ----

type MockWalletRepo struct {
	mu      sync.Mutex
	byUser  map[string]*model.Wallet
	txsByWa map[string][]*model.WalletTransaction

	AppendTransactionFunc func(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error
	UpdateBalanceFunc     func(ctx context.Context, tx repository.Tx, walletID string, balance int64) error
}

var _ repository.WalletRepository = (*MockWalletRepo)(nil)

func NewMockWalletRepo() *MockWalletRepo {
	return &MockWalletRepo{
		byUser:  map[string]*model.Wallet{},
		txsByWa: map[string][]*model.WalletTransaction{},
	}
}

func (r *MockWalletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.byUser[userID]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockWalletRepo) Upsert(ctx context.Context, tx repository.Tx, w *model.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.byUser[w.UserID] = &cp
	return nil
}

func (r *MockWalletRepo) AppendTransaction(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error {
	if r.AppendTransactionFunc != nil {
		return r.AppendTransactionFunc(ctx, tx, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.txsByWa[t.WalletID] = append(r.txsByWa[t.WalletID], &cp)
	return nil
}

func (r *MockWalletRepo) ListTransactions(ctx context.Context, tx repository.Tx, walletID string) ([]*model.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.txsByWa[walletID]
	out := make([]*model.WalletTransaction, 0, len(src))
	for _, t := range src {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MockWalletRepo) UpdateBalance(ctx context.Context, tx repository.Tx, walletID string, balance int64) error {
	if r.UpdateBalanceFunc != nil {
		return r.UpdateBalanceFunc(ctx, tx, walletID, balance)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.byUser {
		if w.ID == walletID {
			w.Balance = balance
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *MockWalletRepo) Transactions(walletID string) []*model.WalletTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.WalletTransaction(nil), r.txsByWa[walletID]...)
}

// ---- Mock WebhookEventRepository ----

type MockWebhookEventRepo struct {
	mu   sync.Mutex
	seen map[string]bool
}

var _ repository.WebhookEventRepository = (*MockWebhookEventRepo)(nil)

func NewMockWebhookEventRepo() *MockWebhookEventRepo {
	return &MockWebhookEventRepo{seen: map[string]bool{}}
}

func (r *MockWebhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[ev.ID] {
		return false, nil
	}
	r.seen[ev.ID] = true
	return true, nil
}

// ---- Mock CheckoutGateway ----

type MockGateway struct {
	EnsureCustomerFunc        func(ctx context.Context, email string) (adapter.Customer, error)
	CreateCheckoutSessionFunc func(ctx context.Context, customerID, priceID string, meta map[string]string) (adapter.CheckoutSession, error)
}

var _ adapter.CheckoutGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) EnsureCustomer(ctx context.Context, email string) (adapter.Customer, error) {
	if g.EnsureCustomerFunc != nil {
		return g.EnsureCustomerFunc(ctx, email)
	}
	return adapter.Customer{ID: "cus_test", Email: email}, nil
}

func (g *MockGateway) CreateCheckoutSession(ctx context.Context, customerID, priceID string, meta map[string]string) (adapter.CheckoutSession, error) {
	if g.CreateCheckoutSessionFunc != nil {
		return g.CreateCheckoutSessionFunc(ctx, customerID, priceID, meta)
	}
	return adapter.CheckoutSession{ID: "cs_test", URL: "https://checkout.example/cs_test"}, nil
}

// ---- Mock Mailer ----

type MockMailer struct {
	mu   sync.Mutex
	Sent []string // recipients
}

var _ adapter.Mailer = (*MockMailer)(nil)

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, to)
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx runs the function immediately with a nil tx unless overridden.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}
