package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestLedgerOrderService(t *testing.T) {
	ctx := context.Background()
	l := NewLedgerOrderService()

	order, err := l.CreateOrder(ctx, uuid.New(), "ticket-2026")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if order.ProductRef != "ticket-2026" || order.Reference == "" {
		t.Errorf("Unexpected order: %+v", order)
	}
	if l.Count() != 1 {
		t.Errorf("Expected 1 open order, got %d", l.Count())
	}

	l.Reject("sold-out")
	if _, err := l.CreateOrder(ctx, uuid.New(), "sold-out"); !errors.Is(err, ErrProductUnavailable) {
		t.Errorf("Expected ErrProductUnavailable, got %v", err)
	}

	if err := l.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if l.Count() != 0 {
		t.Errorf("Expected no open orders, got %d", l.Count())
	}
}
