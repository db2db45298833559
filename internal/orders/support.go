package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/staff"
	"go.uber.org/zap"
)

// AssignSupport opens a support conversation for the customer with the
// least busy customer-support member.
func (s *Service) AssignSupport(ctx context.Context, customerID string) (SupportAssignment, error) {
	if customerID == "" {
		return SupportAssignment{}, &ValidationError{Field: "customer_id", Message: "required"}
	}
	var (
		a   SupportAssignment
		box = &outbox{s: s}
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		box.items = nil
		c, err := tx.LockCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		pool, err := s.staffPool(ctx, tx, staff.CapabilitySupport)
		if err != nil {
			return err
		}
		m, err := s.balancer.Assign(ctx, staff.CapabilitySupport, pool, tx)
		if errors.Is(err, staff.ErrNoneAvailable) {
			return fmt.Errorf("%w: customer support", ErrNoHandlerAvailable)
		}
		if err != nil {
			return err
		}
		a = SupportAssignment{ID: s.newID(), CustomerID: c.ID, StaffID: m.ID, OpenedAt: s.now().UTC()}
		if err := tx.InsertSupportAssignment(ctx, a); err != nil {
			return err
		}
		box.add(c.ID, KindSupportAssigned, "", "Support assigned",
			fmt.Sprintf("%s will help you with your request.", displayName(m)))
		box.add(m.ID, KindSupportAssigned, "", "New support conversation",
			fmt.Sprintf("Customer %s is waiting for you.", c.ID))
		return nil
	})
	if err != nil {
		s.log.Warn("support assignment failed", zap.String("customer_id", customerID), zap.Error(err))
		return SupportAssignment{}, classify(err)
	}
	box.flush(ctx)
	return a, nil
}

func (s *Service) CloseSupport(ctx context.Context, assignmentID string) (SupportAssignment, error) {
	if assignmentID == "" {
		return SupportAssignment{}, &ValidationError{Field: "assignment_id", Message: "required"}
	}
	var a SupportAssignment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		a, err = tx.CloseSupportAssignment(ctx, assignmentID, s.now().UTC())
		return err
	})
	return a, classify(err)
}

func displayName(m staff.Member) string {
	if m.Name != "" {
		return m.Name
	}
	return "A support agent"
}
