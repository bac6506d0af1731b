package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/redrec/internal/kv"
)

var (
	// ErrStoreUnavailable is the transport failure reported by the store
	// adapter. It is propagated as is; nothing in this package retries.
	ErrStoreUnavailable = kv.ErrUnavailable

	// ErrWriteConflict is returned by DeleteAll when a watched index key
	// changed between the read and the commit. Nothing was deleted.
	ErrWriteConflict = errors.New("record: write conflict")
)

// ConfigError reports an invalid collection configuration. It is returned
// synchronously by New and is never retryable.
type ConfigError struct {
	// Collection is the configured name, possibly blank.
	Collection string

	// Option names the offending setting, e.g. "name" or "lookup_keys".
	Option string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("collection %q: invalid %s: %s", e.Collection, e.Option, e.Message)
	}
	return fmt.Sprintf("collection: invalid %s: %s", e.Option, e.Message)
}

// ValidationError reports a create input that failed the field checks.
// No command was sent to the store.
type ValidationError struct {
	Collection string

	// Missing lists required key fields that were absent or blank.
	Missing []string

	// Reserved lists system fields the caller tried to supply.
	Reserved []string
}

// Fields returns every offending field name, sorted.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Missing)+len(e.Reserved))
	fields = append(fields, e.Missing...)
	fields = append(fields, e.Reserved...)
	sort.Strings(fields)
	return fields
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing or blank "+strings.Join(e.Missing, ", "))
	}
	if len(e.Reserved) > 0 {
		parts = append(parts, "reserved "+strings.Join(e.Reserved, ", "))
	}
	return fmt.Sprintf("collection %q: invalid record: %s", e.Collection, strings.Join(parts, "; "))
}

// BatchError aggregates the failed commands of one pipeline or transaction.
// Commands that are not listed succeeded; nothing was rolled back.
type BatchError struct {
	Collection string
	Op         string

	// Total is the number of commands in the batch.
	Total int

	// Errs holds one *kv.CmdError per failed command, in batch order.
	Errs []error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("collection %q: %s: %d of %d commands failed: %s",
		e.Collection, e.Op, len(e.Errs), e.Total, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual command errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return e.Errs
}

// IsConfigError returns true if err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsValidationError returns true if err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsBatchError returns true if err is or wraps a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsStoreUnavailable returns true for transport failures from the store.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsWriteConflict returns true if a watched transaction was aborted.
func IsWriteConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}

func newBatchError(collection, op string, cmds []kv.Cmd, results []kv.Result) error {
	errs := kv.CmdErrs(cmds, results)
	if len(errs) == 0 {
		return nil
	}
	return &BatchError{Collection: collection, Op: op, Total: len(cmds), Errs: errs}
}
