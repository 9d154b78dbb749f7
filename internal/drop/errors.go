package drop

import "errors"

// Error taxonomy. Wrap these with fmt.Errorf("%w: ...") so the HTTP layer can
// map them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("forbidden")
	ErrStorage    = errors.New("storage failure")
	// ErrConflict means the hot snapshot changed since it was loaded.
	ErrConflict = errors.New("hot snapshot changed concurrently")
)
