package ledger

import (
	"errors"
	"fmt"

	"github.com/alfredjeanlab/paywall/internal/model"
)

// Code is a stable, machine-readable ledger error code.
type Code string

const (
	// Validation
	CodeURITooLong         Code = model.CodeURITooLong
	CodeInvalidPrice       Code = model.CodeInvalidPrice
	CodeInvalidRoyalty     Code = model.CodeInvalidRoyalty
	CodeInvalidAmount      Code = model.CodeInvalidAmount
	CodeFeesTooHigh        Code = model.CodeFeesTooHigh
	CodeAssetMismatch      Code = "AssetMismatch"
	CodeDuplicateSequence  Code = "DuplicateSequence"
	CodeInvalidInstruction Code = "InvalidInstruction"

	// Authorization
	CodeUnauthorized     Code = "Unauthorized"
	CodeInvalidSignature Code = "InvalidSignature"

	// State
	CodeAlreadyPurchased        Code = "AlreadyPurchased"
	CodeFeeConfigNotInitialized Code = "FeeConfigNotInitialized"
	CodeArticleNotFound         Code = "ArticleNotFound"
	CodeAccountNotFound         Code = "AccountNotFound"
	CodeDuplicateTransaction    Code = "DuplicateTransaction"

	// Resource
	CodeInsufficientFunds       Code = "InsufficientFunds"
	CodeReferrerAccountMissing  Code = "ReferrerAccountMissing"
	CodeRecipientAccountMissing Code = "RecipientAccountMissing"
	CodeOverflow                Code = "Overflow"
)

// Category groups codes for transports that map errors to status codes.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryAuthorization Category = "authorization"
	CategoryState         Category = "state"
	CategoryResource      Category = "resource"
)

// Category returns the group a code belongs to. Unknown codes are treated
// as validation failures.
func (c Code) Category() Category {
	switch c {
	case CodeUnauthorized, CodeInvalidSignature:
		return CategoryAuthorization
	case CodeAlreadyPurchased, CodeFeeConfigNotInitialized, CodeArticleNotFound,
		CodeAccountNotFound, CodeDuplicateTransaction:
		return CategoryState
	case CodeInsufficientFunds, CodeReferrerAccountMissing, CodeRecipientAccountMissing, CodeOverflow:
		return CategoryResource
	}
	return CategoryValidation
}

// IsValid reports whether c is one of the codes above.
func (c Code) IsValid() bool {
	switch c {
	case CodeURITooLong, CodeInvalidPrice, CodeInvalidRoyalty, CodeInvalidAmount, CodeFeesTooHigh,
		CodeAssetMismatch, CodeDuplicateSequence, CodeInvalidInstruction,
		CodeUnauthorized, CodeInvalidSignature,
		CodeAlreadyPurchased, CodeFeeConfigNotInitialized, CodeArticleNotFound,
		CodeAccountNotFound, CodeDuplicateTransaction,
		CodeInsufficientFunds, CodeReferrerAccountMissing, CodeRecipientAccountMissing, CodeOverflow:
		return true
	}
	return false
}

// IsNotFound reports whether the code means the addressed record is absent.
func (c Code) IsNotFound() bool {
	return c == CodeArticleNotFound || c == CodeAccountNotFound
}

// Error is a ledger rejection. A rejected instruction has no effect.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Is matches any *Error with the same code, so callers can write
// errors.Is(err, ledger.ErrAlreadyPurchased).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrURITooLong              = &Error{Code: CodeURITooLong}
	ErrInvalidPrice            = &Error{Code: CodeInvalidPrice}
	ErrInvalidRoyalty          = &Error{Code: CodeInvalidRoyalty}
	ErrInvalidAmount           = &Error{Code: CodeInvalidAmount}
	ErrFeesTooHigh             = &Error{Code: CodeFeesTooHigh}
	ErrAssetMismatch           = &Error{Code: CodeAssetMismatch}
	ErrDuplicateSequence       = &Error{Code: CodeDuplicateSequence}
	ErrInvalidInstruction      = &Error{Code: CodeInvalidInstruction}
	ErrUnauthorized            = &Error{Code: CodeUnauthorized}
	ErrInvalidSignature        = &Error{Code: CodeInvalidSignature}
	ErrAlreadyPurchased        = &Error{Code: CodeAlreadyPurchased}
	ErrFeeConfigNotInitialized = &Error{Code: CodeFeeConfigNotInitialized}
	ErrArticleNotFound         = &Error{Code: CodeArticleNotFound}
	ErrAccountNotFound         = &Error{Code: CodeAccountNotFound}
	ErrDuplicateTransaction    = &Error{Code: CodeDuplicateTransaction}
	ErrInsufficientFunds       = &Error{Code: CodeInsufficientFunds}
	ErrReferrerAccountMissing  = &Error{Code: CodeReferrerAccountMissing}
	ErrRecipientAccountMissing = &Error{Code: CodeRecipientAccountMissing}
	ErrOverflow                = &Error{Code: CodeOverflow}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the ledger code carried by err, or "" if err is not a
// ledger rejection.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// fromValidation converts the first failure of a model.ValidationError.
func fromValidation(err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) && ve.HasErrors() {
		fe := ve.First()
		return &Error{Code: Code(fe.Code), Message: fe.Field + " " + fe.Message}
	}
	return err
}
