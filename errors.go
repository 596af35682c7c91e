package eventflow

import (
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrVersionConflict   = errors.New("event stream version conflict", j.C("ERR_96b8e2004cdd5c4f"))
	ErrInvalidTransition = errors.New("command not valid for current workflow status", j.C("ERR_1fe2b1d5a0c4d8e3"))
	ErrEmptyHistory      = errors.New("cannot build aggregate from empty history", j.C("ERR_8a51c6f0a93d27b1"))
	ErrSnapshotNotFound  = errors.New("snapshot not found", j.C("ERR_4dca92e7f16b08a4"))
	ErrCursorNotFound    = errors.New("cursor not found", j.C("ERR_b0d71c3e88f2546a"))
)

// ConflictError is returned by EventStore.Append when the expected version no
// longer matches the persisted stream version, meaning another writer appended
// between the caller's read of current state and this write attempt. Callers
// must reload the aggregate and re-issue the command rather than retry the
// append with stale events.
//
// ConflictError matches ErrVersionConflict under errors.Is.
type ConflictError struct {
	StreamID        string
	ExpectedVersion int64
	CurrentVersion  int64
}

func (e ConflictError) Error() string {
	return "event stream version conflict: stream " + e.StreamID +
		" expected version " + strconv.FormatInt(e.ExpectedVersion, 10) +
		" but is at " + strconv.FormatInt(e.CurrentVersion, 10)
}

func (e ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
