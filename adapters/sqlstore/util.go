package sqlstore

import (
	"context"
	"database/sql"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/flowsource/eventflow"
)

func (s *SQLStore) insertEvent(ctx context.Context, tx *sql.Tx, e *eventflow.Event) (int64, error) {
	meta, err := marshalMeta(e.Meta)
	if err != nil {
		return 0, err
	}

	resp, err := tx.ExecContext(ctx, "insert into "+s.eventsTableName+" set "+
		" id=?, stream_id=?, step_execution_id=?, event_type=?, data=?, source=?, "+
		" user_id=?, correlation_id=?, causation_id=?, trace_id=?, meta=?, version=?, created_at=? ",
		e.ID,
		e.StreamID,
		e.StepExecutionID,
		string(e.Type),
		e.Data,
		e.Source,
		e.UserID,
		e.CorrelationID,
		e.CausationID,
		e.TraceID,
		meta,
		e.Version,
		e.CreatedAt,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert event", j.MKV{
			"event_id":   e.ID,
			"stream_id":  e.StreamID,
			"event_type": string(e.Type),
			"version":    e.Version,
		})
	}

	return resp.LastInsertId()
}

// listWhere queries the events table with the provided where clause, then
// scans and returns all the rows.
func (s *SQLStore) listWhere(ctx context.Context, dbc *sql.DB, where string, args ...any) ([]eventflow.Event, error) {
	rows, err := dbc.QueryContext(ctx, s.eventSelectPrefix+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listWhere")
	}
	defer rows.Close()

	var res []eventflow.Event
	for rows.Next() {
		e, err := eventScan(rows)
		if err != nil {
			return nil, err
		}

		res = append(res, *e)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	return res, nil
}

func eventScan(rows *sql.Rows) (*eventflow.Event, error) {
	var (
		e         eventflow.Event
		eventType string
		meta      []byte
	)

	err := rows.Scan(
		&e.GlobalPosition,
		&e.ID,
		&e.StreamID,
		&e.StepExecutionID,
		&eventType,
		&e.Data,
		&e.Source,
		&e.UserID,
		&e.CorrelationID,
		&e.CausationID,
		&e.TraceID,
		&meta,
		&e.Version,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "event scan")
	}

	e.Type = eventflow.EventType(eventType)
	e.Meta, err = unmarshalMeta(meta)
	if err != nil {
		return nil, err
	}

	return &e, nil
}

func marshalMeta(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}

	b, err := eventflow.Marshal(&meta)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event meta")
	}

	return b, nil
}

func unmarshalMeta(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var meta map[string]string
	err := eventflow.Unmarshal(b, &meta)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal event meta")
	}

	return meta, nil
}
