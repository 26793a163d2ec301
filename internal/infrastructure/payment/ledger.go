package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/pkg/logger"

	"github.com/google/uuid"
)

var ErrProductUnavailable = errors.New("product is not available")

// LedgerOrderService is a stand-in payment provider that accepts every
// order for a known product and keeps them in memory.
type LedgerOrderService struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*interfaces.PlacedOrder
	rejected map[string]bool
	now      func() time.Time
}

func NewLedgerOrderService() *LedgerOrderService {
	return &LedgerOrderService{
		orders:   make(map[uuid.UUID]*interfaces.PlacedOrder),
		rejected: make(map[string]bool),
		now:      time.Now,
	}
}

// Reject makes future orders for productRef fail.
func (l *LedgerOrderService) Reject(productRef string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejected[productRef] = true
}

func (l *LedgerOrderService) CreateOrder(ctx context.Context, userID uuid.UUID, productRef string) (*interfaces.PlacedOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if productRef == "" || l.rejected[productRef] {
		return nil, fmt.Errorf("%w: %q", ErrProductUnavailable, productRef)
	}

	order := &interfaces.PlacedOrder{
		ID:         uuid.New(),
		ProductRef: productRef,
		PlacedAt:   l.now().UTC(),
	}
	order.Reference = "ord_" + order.ID.String()[:8]
	l.orders[order.ID] = order

	logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"product_ref": productRef,
		"order_id":    order.ID,
	}).Debug("Order placed")
	return order, nil
}

func (l *LedgerOrderService) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.orders, orderID)
	return nil
}

// Count returns the number of open orders.
func (l *LedgerOrderService) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}

var _ interfaces.OrderService = (*LedgerOrderService)(nil)
