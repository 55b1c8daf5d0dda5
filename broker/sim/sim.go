package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/rustyeddy/riskgate/broker"
)

// Broker is an in-memory broker used by the engine tests and the demo CLI.
// It keeps net positions and working orders behind one mutex the way the
// live adapter serializes SDK calls.
type Broker struct {
	mu        sync.Mutex
	acct      broker.Account
	positions map[string]*broker.Position
	orders    map[string]*broker.Order

	// Calls records every enforcement operation in arrival order, e.g.
	// "close EUR_USD", "close-all", "cancel-orders".
	Calls []string

	// failNext holds errors to return, one per upcoming enforcement call.
	failNext []error
}

func New(acct broker.Account) *Broker {
	return &Broker{
		acct:      acct,
		positions: make(map[string]*broker.Position),
		orders:    make(map[string]*broker.Order),
	}
}

// FailNext queues err to be returned by the next enforcement call. Queue
// several to simulate a flaky broker that recovers after N retries.
func (b *Broker) FailNext(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = append(b.failNext, errs...)
}

func (b *Broker) popFailure() error {
	if len(b.failNext) == 0 {
		return nil
	}
	err := b.failNext[0]
	b.failNext = b.failNext[1:]
	return err
}

// SetPosition installs or replaces the net position for a symbol.
func (b *Broker) SetPosition(p broker.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Units == 0 {
		delete(b.positions, p.Symbol)
		return
	}
	cp := p
	b.positions[p.Symbol] = &cp
}

// SetOrder installs or replaces a working order.
func (b *Broker) SetOrder(o broker.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := o
	b.orders[o.ID] = &cp
}

func (b *Broker) SetCanTrade(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acct.CanTrade = ok
}

func (b *Broker) GetAccount(ctx context.Context) (broker.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acct, nil
}

func (b *Broker) ListPositions(ctx context.Context) ([]broker.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (b *Broker) ListOrders(ctx context.Context) ([]broker.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (b *Broker) ClosePosition(ctx context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "close "+symbol)
	if err := b.popFailure(); err != nil {
		return err
	}
	if _, ok := b.positions[symbol]; !ok {
		return fmt.Errorf("close position: no open position for %q", symbol)
	}
	delete(b.positions, symbol)
	return nil
}

func (b *Broker) CloseAll(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "close-all")
	if err := b.popFailure(); err != nil {
		return err
	}
	b.positions = make(map[string]*broker.Position)
	return nil
}

func (b *Broker) ReducePosition(ctx context.Context, symbol string, targetUnits float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, fmt.Sprintf("reduce %s %.0f", symbol, targetUnits))
	if err := b.popFailure(); err != nil {
		return err
	}
	p, ok := b.positions[symbol]
	if !ok {
		return fmt.Errorf("reduce position: no open position for %q", symbol)
	}
	if targetUnits == 0 {
		delete(b.positions, symbol)
		return nil
	}
	p.Units = targetUnits
	return nil
}

func (b *Broker) CancelOrders(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, "cancel-orders")
	if err := b.popFailure(); err != nil {
		return err
	}
	b.orders = make(map[string]*broker.Order)
	return nil
}

func (b *Broker) ModifyStop(ctx context.Context, symbol string, stopPrice float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Calls = append(b.Calls, fmt.Sprintf("modify-stop %s %.5f", symbol, stopPrice))
	if err := b.popFailure(); err != nil {
		return err
	}
	for _, o := range b.orders {
		if o.Symbol == symbol && o.Type == broker.OrderTypeStop {
			o.Price = stopPrice
			return nil
		}
	}
	return fmt.Errorf("modify stop: no stop order for %q", symbol)
}

// Position returns the current net position, or nil when flat.
func (b *Broker) Position(symbol string) *broker.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[symbol]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// CallLog returns a copy of the enforcement call log.
func (b *Broker) CallLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.Calls))
	copy(out, b.Calls)
	return out
}
