package sqlstore_test

import (
	"database/sql"
	"testing"

	"github.com/corverroos/truss"
	_ "github.com/go-sql-driver/mysql"
)

var migrations = []string{
	`
	create table workflow_events (
		global_position        bigint not null auto_increment,
		id                     varchar(255) not null,
		stream_id              varchar(255) not null,
		step_execution_id      varchar(255) not null default '',
		event_type             varchar(255) not null,
		data                   longblob,
		source                 varchar(255) not null,
		user_id                varchar(255) not null default '',
		correlation_id         varchar(255) not null,
		causation_id           varchar(255) not null default '',
		trace_id               varchar(255) not null,
		meta                   blob,
		version                bigint not null,
		created_at             datetime(3) not null,

		primary key (global_position),

		unique index by_stream_id_version (stream_id, version),
		index by_event_type (event_type, global_position)
	)`,
	`
	create table workflow_stream_heads (
		stream_id          varchar(255) not null,
		version            bigint not null,
		updated_at         datetime(3) not null,

		primary key (stream_id)
	)`,
	`
	create table workflow_snapshots (
		stream_id          varchar(255) not null,
		version            bigint not null,
		data               longblob,
		created_at         datetime(3) not null,

		primary key (stream_id)
	)`,
	`
	create table workflow_cursors (
		name               varchar(255) not null,
		value              varchar(255) not null,
		updated_at         datetime(3) not null,

		primary key (name)
	)`,
}

func ConnectForTesting(t *testing.T) *sql.DB {
	return truss.ConnectForTesting(t, migrations...)
}
