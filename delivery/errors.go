package delivery

import (
	"errors"
	"fmt"
)

var errUndelivered = errors.New("events remain undelivered after final flush")

// DeliveryError wraps a downstream send failure together with the number of
// affected events.
type DeliveryError struct {
	Events int
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %d event(s): %v", e.Events, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
