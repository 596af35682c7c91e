// Package sqlstore provides a MySQL backed event store. The optimistic
// concurrency check is a conditional update of a stream head row inside the
// append transaction, with a unique key on (stream_id, version) as backstop,
// so at most one writer succeeds per (stream, expected version) pair.
package sqlstore

import (
	"context"
	"database/sql"
	"os"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"k8s.io/utils/clock"

	"github.com/flowsource/eventflow"
	"github.com/flowsource/eventflow/internal/logger"
	"github.com/flowsource/eventflow/internal/metrics"
)

type SQLStore struct {
	writer *sql.DB
	reader *sql.DB

	clock       clock.PassiveClock
	subscribers *eventflow.SubscriberRegistry

	// notifyMu serialises commit plus fan-out so in-process subscribers
	// observe events in commit order.
	notifyMu sync.Mutex

	eventsTableName    string
	headsTableName     string
	snapshotsTableName string
	cursorsTableName   string

	eventCols         string
	eventSelectPrefix string
}

type Option func(*SQLStore)

func WithClock(c clock.PassiveClock) Option {
	return func(s *SQLStore) {
		s.clock = c
	}
}

func WithLogger(l eventflow.Logger) Option {
	return func(s *SQLStore) {
		s.subscribers = eventflow.NewSubscriberRegistry(l)
	}
}

func New(writer *sql.DB, reader *sql.DB, eventsTable, headsTable, snapshotsTable, cursorsTable string, opts ...Option) *SQLStore {
	s := &SQLStore{
		writer:             writer,
		reader:             reader,
		clock:              clock.RealClock{},
		subscribers:        eventflow.NewSubscriberRegistry(logger.New(os.Stderr)),
		eventsTableName:    eventsTable,
		headsTableName:     headsTable,
		snapshotsTableName: snapshotsTable,
		cursorsTableName:   cursorsTable,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.eventCols = " `global_position`, `id`, `stream_id`, `step_execution_id`, `event_type`, `data`, `source`, " +
		" `user_id`, `correlation_id`, `causation_id`, `trace_id`, `meta`, `version`, `created_at` "
	s.eventSelectPrefix = " select " + s.eventCols + " from " + s.eventsTableName + " where "

	return s
}

var _ eventflow.EventStore = (*SQLStore)(nil)

func (s *SQLStore) Append(ctx context.Context, streamID string, expectedVersion int64, events []eventflow.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin append tx")
	}
	defer tx.Rollback()

	newVersion := expectedVersion + int64(len(events))
	err = s.bumpHead(ctx, tx, streamID, expectedVersion, newVersion)
	if err != nil {
		return err
	}

	appended := make([]eventflow.Event, 0, len(events))
	for i, e := range events {
		e.Version = expectedVersion + int64(i) + 1

		globalPosition, err := s.insertEvent(ctx, tx, &e)
		if err != nil {
			return err
		}

		e.GlobalPosition = globalPosition
		appended = append(appended, e)
	}

	err = tx.Commit()
	if err != nil {
		return errors.Wrap(err, "commit append tx", j.KV("stream_id", streamID))
	}

	for _, e := range appended {
		metrics.AppendedEvents.WithLabelValues(string(e.Type)).Inc()
	}

	t0 := s.clock.Now()
	s.subscribers.Notify(ctx, appended)
	metrics.NotifyLatency.Observe(s.clock.Since(t0).Seconds())

	return nil
}

// bumpHead performs the compare and swap on the stream head row. A stream's
// first append inserts the row; later appends conditionally update it and the
// affected row count decides success.
func (s *SQLStore) bumpHead(ctx context.Context, tx *sql.Tx, streamID string, expectedVersion, newVersion int64) error {
	if expectedVersion == 0 {
		_, err := tx.ExecContext(ctx, "insert into "+s.headsTableName+" set "+
			" stream_id=?, version=?, updated_at=now(3) ",
			streamID,
			newVersion,
		)
		if isDuplicateEntry(err) {
			return s.conflict(ctx, streamID, expectedVersion)
		} else if err != nil {
			return errors.Wrap(err, "insert stream head", j.KV("stream_id", streamID))
		}

		return nil
	}

	res, err := tx.ExecContext(ctx, "update "+s.headsTableName+" set "+
		" version=?, updated_at=now(3) where stream_id=? and version=? ",
		newVersion,
		streamID,
		expectedVersion,
	)
	if err != nil {
		return errors.Wrap(err, "update stream head", j.KV("stream_id", streamID))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "stream head rows affected")
	}

	if n == 0 {
		return s.conflict(ctx, streamID, expectedVersion)
	}

	return nil
}

func (s *SQLStore) conflict(ctx context.Context, streamID string, expectedVersion int64) error {
	metrics.VersionConflicts.Inc()

	var current int64
	err := s.reader.QueryRowContext(ctx,
		"select version from "+s.headsTableName+" where stream_id=?", streamID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current = 0
	} else if err != nil {
		return errors.Wrap(err, "lookup current version", j.KV("stream_id", streamID))
	}

	return eventflow.ConflictError{
		StreamID:        streamID,
		ExpectedVersion: expectedVersion,
		CurrentVersion:  current,
	}
}

func (s *SQLStore) List(ctx context.Context, streamID string, fromVersion int64) ([]eventflow.Event, error) {
	return s.listWhere(ctx, s.reader,
		"stream_id=? and version>? order by version asc",
		streamID, fromVersion,
	)
}

func (s *SQLStore) ListReverse(ctx context.Context, streamID string, fromVersion int64, limit int) ([]eventflow.Event, error) {
	if limit <= 0 {
		limit = eventflow.DefaultReverseLimit
	}

	if fromVersion > 0 {
		return s.listWhere(ctx, s.reader,
			"stream_id=? and version<=? order by version desc limit ?",
			streamID, fromVersion, limit,
		)
	}

	return s.listWhere(ctx, s.reader,
		"stream_id=? order by version desc limit ?",
		streamID, limit,
	)
}

func (s *SQLStore) ListAll(ctx context.Context, fromPosition int64, limit int) ([]eventflow.Event, error) {
	if limit <= 0 {
		limit = eventflow.DefaultListAllLimit
	}

	return s.listWhere(ctx, s.reader,
		"global_position>? order by global_position asc limit ?",
		fromPosition, limit,
	)
}

func (s *SQLStore) ListByType(ctx context.Context, eventType eventflow.EventType, fromPosition int64) ([]eventflow.Event, error) {
	return s.listWhere(ctx, s.reader,
		"event_type=? and global_position>? order by global_position asc",
		string(eventType), fromPosition,
	)
}

func (s *SQLStore) Subscribe(eventType eventflow.EventType, handler eventflow.EventHandler) *eventflow.Subscription {
	return s.subscribers.Subscribe(eventType, handler)
}

func (s *SQLStore) SetSnapshot(ctx context.Context, snapshot *eventflow.Snapshot) error {
	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	_, err := s.writer.ExecContext(ctx, "insert into "+s.snapshotsTableName+" set "+
		" stream_id=?, version=?, data=?, created_at=? "+
		" on duplicate key update version=values(version), data=values(data), created_at=values(created_at) ",
		snapshot.StreamID,
		snapshot.Version,
		snapshot.Data,
		createdAt,
	)
	if err != nil {
		return errors.Wrap(err, "upsert snapshot", j.KV("stream_id", snapshot.StreamID))
	}

	return nil
}

func (s *SQLStore) LookupSnapshot(ctx context.Context, streamID string) (*eventflow.Snapshot, error) {
	var snap eventflow.Snapshot
	err := s.reader.QueryRowContext(ctx,
		"select stream_id, version, data, created_at from "+s.snapshotsTableName+" where stream_id=?",
		streamID,
	).Scan(&snap.StreamID, &snap.Version, &snap.Data, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(eventflow.ErrSnapshotNotFound, "", j.KV("stream_id", streamID))
	} else if err != nil {
		return nil, errors.Wrap(err, "lookup snapshot", j.KV("stream_id", streamID))
	}

	return &snap, nil
}

// DeleteSnapshot removes the stream's snapshot. Snapshots are a derived
// cache, so this only affects replay cost, never replay results.
func (s *SQLStore) DeleteSnapshot(ctx context.Context, streamID string) error {
	_, err := s.writer.ExecContext(ctx,
		"delete from "+s.snapshotsTableName+" where stream_id=?", streamID,
	)
	if err != nil {
		return errors.Wrap(err, "delete snapshot", j.KV("stream_id", streamID))
	}

	return nil
}

var _ eventflow.CursorStore = (*SQLStore)(nil)

func (s *SQLStore) Get(ctx context.Context, name string) (string, error) {
	var value string
	err := s.reader.QueryRowContext(ctx,
		"select value from "+s.cursorsTableName+" where name=?", name,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrap(eventflow.ErrCursorNotFound, "", j.KV("cursor", name))
	} else if err != nil {
		return "", errors.Wrap(err, "lookup cursor", j.KV("cursor", name))
	}

	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, name, value string) error {
	_, err := s.writer.ExecContext(ctx, "insert into "+s.cursorsTableName+" set "+
		" name=?, value=?, updated_at=now(3) "+
		" on duplicate key update value=values(value), updated_at=values(updated_at) ",
		name,
		value,
	)
	if err != nil {
		return errors.Wrap(err, "set cursor", j.KV("cursor", name))
	}

	return nil
}

func isDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}

	return false
}
