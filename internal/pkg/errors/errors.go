package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")

	ErrImportPayloadTooLarge = errors.New("import payload too large")
	ErrImportTooManyRows     = errors.New("import too many rows")
	ErrImportMalformedFile   = errors.New("import malformed file")
	ErrImportMissingColumns  = errors.New("import missing required columns")
	ErrProviderUnavailable   = errors.New("import provider unavailable")
	ErrCredentialMissing     = errors.New("provider credential missing")
	ErrCredentialRejected    = errors.New("provider credential rejected")
	ErrUnsupportedKeyVersion = errors.New("unsupported key version")
)

// RateLimitError reports a denied rate/quota check. It matches ErrTooMany.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Action, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrTooMany
}

// MissingColumnsError lists the mandatory logical fields no header could be mapped to.
type MissingColumnsError struct {
	Fields []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Fields, ", ")
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrImportMissingColumns
}

type KeyVersionError struct {
	Version string
}

func (e *KeyVersionError) Error() string {
	return fmt.Sprintf("unsupported key version %q", e.Version)
}

func (e *KeyVersionError) Unwrap() error {
	return ErrUnsupportedKeyVersion
}

// ParseError is a fatal delimited-text error; Line is 1-indexed.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrImportMalformedFile
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
