package orders

import "errors"

var (
	// ErrProductNotFound means a line references an unknown EAN.
	ErrProductNotFound = errors.New("product not found")
	// ErrGateway means the payment processor refused or failed the request.
	ErrGateway = errors.New("payment gateway failure")
)
