package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindDependency ErrorKind = "dependency"
	KindInternal   ErrorKind = "internal"
)

// Error is the kinded error raised by the round, word and scoring services.
// Two Errors match under errors.Is when their codes are equal, so a contextual
// instance still matches the sentinel it was built from.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy carrying a more specific message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap returns a copy wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

var (
	ErrRoundNotFound     = &Error{Kind: KindNotFound, Code: "ROUND_NOT_FOUND", Message: "round not found"}
	ErrRoundNotActive    = &Error{Kind: KindConflict, Code: "ROUND_NOT_ACTIVE", Message: "round not active"}
	ErrDuplicateGuess    = &Error{Kind: KindConflict, Code: "DUPLICATE_GUESS", Message: "duplicate guess"}
	ErrInvalidTransition = &Error{Kind: KindConflict, Code: "INVALID_TRANSITION", Message: "invalid round status transition"}
	ErrNoWordsAvailable  = &Error{Kind: KindNotFound, Code: "NO_WORDS_AVAILABLE", Message: "no words available"}
	ErrInvalidGuess      = &Error{Kind: KindValidation, Code: "INVALID_GUESS", Message: "invalid guess"}
	ErrUnknownDifficulty = &Error{Kind: KindValidation, Code: "UNKNOWN_DIFFICULTY", Message: "unknown difficulty"}
	ErrInvalidVector     = &Error{Kind: KindValidation, Code: "INVALID_VECTOR", Message: "invalid embedding vector"}
	ErrProviderFailure   = &Error{Kind: KindDependency, Code: "PROVIDER_FAILURE", Message: "external provider failed"}
	ErrRoundCreation     = &Error{Kind: KindDependency, Code: "ROUND_CREATION_FAILED", Message: "round creation failed"}
)

// KindOf returns the kind of err, or KindInternal for unkinded errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// isDuplicateKey recognises a unique-constraint violation from either driver.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// "23505" is the PostgreSQL error code for unique_violation
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
