package eventflow

import (
	"context"
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// CursorStore keeps named resume positions for projections. Values are kept
// as strings so implementations stay agnostic of what is being tracked.
type CursorStore interface {
	// Get returns the stored value for name, or ErrCursorNotFound.
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// CursorPosition resolves the cursor value for name as a global event
// position. A missing cursor resolves to 0 so a new projection starts from
// the beginning of the log.
func CursorPosition(ctx context.Context, cursors CursorStore, name string) (int64, error) {
	value, err := cursors.Get(ctx, name)
	if errors.Is(err, ErrCursorNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	pos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "malformed cursor value", j.MKV{
			"cursor": name,
			"value":  value,
		})
	}

	return pos, nil
}

// SetCursorPosition stores pos as the resume position for name.
func SetCursorPosition(ctx context.Context, cursors CursorStore, name string, pos int64) error {
	return cursors.Set(ctx, name, strconv.FormatInt(pos, 10))
}
