package model

import (
	"fmt"
	"strings"
)

// Validation codes reported in FieldError.Code. They match the ledger's
// stable error codes so callers can pre-check input before signing.
const (
	CodeURITooLong     = "UriTooLong"
	CodeInvalidPrice   = "InvalidPrice"
	CodeInvalidRoyalty = "InvalidRoyalty"
	CodeFeesTooHigh    = "FeesTooHigh"
	CodeInvalidAmount  = "InvalidAmount"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Code    string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first recorded field error. Rules are checked in a fixed
// order, so First is the error a strict validator would stop at.
func (e *ValidationError) First() FieldError {
	if len(e.Errors) == 0 {
		return FieldError{}
	}
	return e.Errors[0]
}

// ValidateArticle checks the static invariants of an article.
// Rules run in order: content locator length, royalty, price.
func ValidateArticle(a *Article) error {
	var ve ValidationError

	if len(a.ContentLocator) > MaxContentLocatorLength {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "content_locator",
			Code:    CodeURITooLong,
			Message: fmt.Sprintf("must be %d bytes or fewer, got %d", MaxContentLocatorLength, len(a.ContentLocator)),
		})
	}

	if a.RoyaltyBps > MaxBasisPoints {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "royalty_bps",
			Code:    CodeInvalidRoyalty,
			Message: fmt.Sprintf("must be at most %d, got %d", MaxBasisPoints, a.RoyaltyBps),
		})
	}

	if err := ValidatePrice(a.Price); err != nil {
		ve.Errors = append(ve.Errors, err.(*ValidationError).Errors...)
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidatePrice rejects a zero price.
func ValidatePrice(price uint64) error {
	if price == 0 {
		return &ValidationError{Errors: []FieldError{{
			Field:   "price",
			Code:    CodeInvalidPrice,
			Message: "must be greater than 0",
		}}}
	}
	return nil
}

// ValidateFeeRates rejects rate pairs whose sum exceeds 100%. Each rate is
// also bounded individually so the sum cannot wrap.
func ValidateFeeRates(protocolFeeBps, referrerFeeBps uint16) error {
	if uint32(protocolFeeBps)+uint32(referrerFeeBps) > MaxBasisPoints {
		return &ValidationError{Errors: []FieldError{{
			Field:   "protocol_fee_bps",
			Code:    CodeFeesTooHigh,
			Message: fmt.Sprintf("protocol (%d) + referrer (%d) must not exceed %d", protocolFeeBps, referrerFeeBps, MaxBasisPoints),
		}}}
	}
	return nil
}

// ValidateAmount rejects a zero deposit amount.
func ValidateAmount(amount uint64) error {
	if amount == 0 {
		return &ValidationError{Errors: []FieldError{{
			Field:   "amount",
			Code:    CodeInvalidAmount,
			Message: "must be greater than 0",
		}}}
	}
	return nil
}
