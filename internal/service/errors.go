package service

import (
	"errors"
	"fmt"
	"strings"
)

// Business errors surfaced to the caller with an actionable message.
// Anything else coming out of a service is a storage error: the handler
// logs it and returns a generic message.
var (
	ErrUnauthenticated      = errors.New("you must be logged in")
	ErrInvalidSecurityToken = errors.New("invalid security token")
	ErrNotFound             = errors.New("not found")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInsufficientStock    = errors.New("not enough stock available")
	ErrEmptyCart            = errors.New("your cart is empty")
	ErrInvalidTransition    = errors.New("order cannot be cancelled in its current state")
)

// ValidationError reports every violated checkout field, not just the
// first one.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

// IsBusinessError reports whether err is safe to show to the caller.
func IsBusinessError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrInvalidSecurityToken) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInvalidTransition)
}
