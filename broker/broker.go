package broker

import (
	"context"
	"errors"
	"fmt"
)

// Broker is the outbound surface the enforcement layer needs. Exactly the
// operations below are used; anything else a broker offers is out of scope.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	ListPositions(ctx context.Context) ([]Position, error)
	ListOrders(ctx context.Context) ([]Order, error)

	ClosePosition(ctx context.Context, symbol string) error
	CloseAll(ctx context.Context) error
	ReducePosition(ctx context.Context, symbol string, targetUnits float64) error
	CancelOrders(ctx context.Context) error
	ModifyStop(ctx context.Context, symbol string, stopPrice float64) error
}

type Account struct {
	ID       string
	Currency string
	Balance  float64
	Equity   float64
	CanTrade bool
}

type Position struct {
	Symbol       string
	Units        float64 // signed net size
	AvgPrice     float64
	UnrealizedPL float64
}

type Order struct {
	ID     string
	Symbol string
	Type   string // "STOP", "LIMIT", ...
	Units  float64
	Price  float64
}

const (
	OrderTypeStop  = "STOP"
	OrderTypeLimit = "LIMIT"
)

// TransientError wraps broker failures worth retrying (rate limits, auth
// refresh, timeouts). Anything not wrapped is treated as permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient broker error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so retry loops recognize it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
