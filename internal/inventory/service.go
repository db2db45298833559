package inventory

import (
	"context"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"time"
)

// Level is the read model for one variant's stock.
type Level struct {
	VariantID string
	OnHand    int
	Lots      []Lot
}

// Service exposes the ledger as standalone operations, one transaction each.
// Order flows call the Ledger directly inside their own transaction instead.
type Service struct {
	Store  Store
	Ledger *Ledger
	Logger *zap.Logger
}

func (s *Service) Receive(ctx context.Context, variantID string, qty int, unitCost decimal.Decimal, receivedAt time.Time) (Lot, error) {
	var lot Lot
	err := s.Store.WithinLotTx(ctx, func(ctx context.Context, lots LotStore) error {
		var err error
		lot, err = s.Ledger.Receive(ctx, lots, variantID, qty, unitCost, receivedAt)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	s.Logger.Info("lot received",
		zap.String("variant_id", variantID),
		zap.String("lot_id", lot.ID),
		zap.Int("quantity", qty),
		zap.String("unit_cost", unitCost.String()))
	return lot, nil
}

func (s *Service) Level(ctx context.Context, variantID string) (Level, error) {
	lots, err := s.Store.ReadLots(ctx, variantID)
	if err != nil {
		return Level{}, err
	}
	sortFIFO(lots)
	return Level{VariantID: variantID, OnHand: OnHand(lots), Lots: lots}, nil
}

// Consume and Restock back manual stock adjustments made outside an order,
// such as damage write-offs and count corrections.
func (s *Service) Consume(ctx context.Context, variantID string, qty int) (Consumption, error) {
	var c Consumption
	err := s.Store.WithinLotTx(ctx, func(ctx context.Context, lots LotStore) error {
		var err error
		c, err = s.Ledger.Consume(ctx, lots, variantID, qty)
		return err
	})
	return c, err
}

func (s *Service) Restock(ctx context.Context, variantID string, qty int, policy Policy) (Lot, error) {
	var lot Lot
	err := s.Store.WithinLotTx(ctx, func(ctx context.Context, lots LotStore) error {
		var err error
		lot, err = s.Ledger.Restock(ctx, lots, variantID, qty, policy)
		return err
	})
	return lot, err
}
