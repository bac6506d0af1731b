package harness

import "github.com/roach88/redrec/internal/record"

// Error kinds reported in outcomes and matched by expect.error.
const (
	ErrorKindValidation  = "validation"
	ErrorKindConfig      = "config"
	ErrorKindBatch       = "batch"
	ErrorKindConflict    = "conflict"
	ErrorKindUnavailable = "unavailable"
	ErrorKindOther       = "error"
)

var validErrorKinds = map[string]bool{
	ErrorKindValidation:  true,
	ErrorKindConfig:      true,
	ErrorKindBatch:       true,
	ErrorKindConflict:    true,
	ErrorKindUnavailable: true,
	ErrorKindOther:       true,
}

// ErrorKind classifies a collection error. It returns "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case record.IsValidationError(err):
		return ErrorKindValidation
	case record.IsConfigError(err):
		return ErrorKindConfig
	case record.IsWriteConflict(err):
		return ErrorKindConflict
	case record.IsStoreUnavailable(err):
		return ErrorKindUnavailable
	case record.IsBatchError(err):
		return ErrorKindBatch
	default:
		return ErrorKindOther
	}
}
