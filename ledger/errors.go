package ledger

import "errors"

// Expected outcomes callers must check with errors.Is; none of these indicate
// a fault, and none leave partial state behind.
var (
	ErrValidation           = errors.New("validation failed")
	ErrHoldingNotFound      = errors.New("holding not found")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrDuplicate            = errors.New("duplicate entry")
	ErrPriceUnavailable     = errors.New("price unavailable")
)
