package orders

import (
	"context"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"time"
)

// Restock policy per transition. Cancelled units go back to the oldest lot so
// FIFO cost ordering is preserved; returned goods land in the newest lot.
const (
	CancelRestockPolicy = inventory.OldestLot
	ReturnRestockPolicy = inventory.NewestLot
)

// Service is the order lifecycle engine. It is the only writer of order and
// item status and calls the stock ledger inside the same transaction.
type Service struct {
	store            Store
	ledger           *inventory.Ledger
	balancer         *staff.Balancer
	notifier         Notifier
	metrics          Metrics
	log              *zap.Logger
	now              func() time.Time
	newID            func() string
	heartbeatTimeout time.Duration
}

type Option func(*Service)

func WithLedger(l *inventory.Ledger) Option       { return func(s *Service) { s.ledger = l } }
func WithBalancer(b *staff.Balancer) Option       { return func(s *Service) { s.balancer = b } }
func WithNotifier(n Notifier) Option              { return func(s *Service) { s.notifier = n } }
func WithMetrics(m Metrics) Option                { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option             { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option       { return func(s *Service) { s.now = now } }
func WithIDs(newID func() string) Option          { return func(s *Service) { s.newID = newID } }
func WithHeartbeatTimeout(d time.Duration) Option { return func(s *Service) { s.heartbeatTimeout = d } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		ledger:   inventory.NewLedger(),
		balancer: staff.NewBalancer(nil),
		notifier: nopNotifier{},
		metrics:  nopMetrics{},
		log:      zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Order(ctx context.Context, id string) (Order, error) {
	if id == "" {
		return Order{}, &ValidationError{Field: "order_id", Message: "required"}
	}
	o, err := s.store.Order(ctx, id)
	return o, classify(err)
}

// outbox collects notifications inside a transaction; they are sent only
// after the commit.
type outbox struct {
	s     *Service
	items []Notification
}

func (b *outbox) add(userID string, kind Kind, orderID, title, body string) {
	b.items = append(b.items, Notification{
		ID:        b.s.newID(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		OrderID:   orderID,
		CreatedAt: b.s.now().UTC(),
	})
}

func (b *outbox) flush(ctx context.Context) {
	for _, n := range b.items {
		b.s.notifier.Notify(ctx, n)
	}
}

// staffPool reads the roster for capability inside tx so the filter is never
// older than the assignment itself.
func (s *Service) staffPool(ctx context.Context, tx Tx, capability staff.Capability) ([]staff.Member, error) {
	pool, err := tx.StaffByCapability(ctx, capability)
	if err != nil {
		return nil, err
	}
	return staff.WithStaleOffline(pool, s.now(), s.heartbeatTimeout), nil
}

func (s *Service) restock(ctx context.Context, tx Tx, it OrderItem, qty int, policy inventory.Policy) error {
	lot, err := s.ledger.Restock(ctx, tx, it.VariantID, qty, policy)
	if err != nil {
		return err
	}
	s.log.Debug("restocked",
		zap.String("order_item_id", it.ID),
		zap.String("variant_id", it.VariantID),
		zap.String("lot_id", lot.ID),
		zap.Int("quantity", qty),
		zap.Stringer("policy", policy))
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }
