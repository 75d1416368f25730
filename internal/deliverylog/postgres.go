// internal/deliverylog/postgres.go
package deliverylog

import (
	"context"
	"database/sql"

	"booking-notifications/internal/common/errors"
)

// PostgresSink appends entries to the delivery_log table:
//
//	CREATE TABLE delivery_log (
//	    id                  UUID PRIMARY KEY,
//	    event_id            TEXT NOT NULL,
//	    event_type          TEXT NOT NULL,
//	    recipient_id        TEXT NOT NULL,
//	    channel             TEXT NOT NULL,
//	    state               TEXT NOT NULL,
//	    reason              TEXT NOT NULL DEFAULT '',
//	    detail              TEXT NOT NULL DEFAULT '',
//	    provider_message_id TEXT NOT NULL DEFAULT '',
//	    created_at          TIMESTAMPTZ NOT NULL
//	);
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

const insertQuery = `
	INSERT INTO delivery_log
		(id, event_id, event_type, recipient_id, channel, state, reason, detail, provider_message_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *PostgresSink) Write(ctx context.Context, entry *Entry) error {
	_, err := s.db.ExecContext(ctx, insertQuery,
		entry.ID,
		entry.EventID,
		entry.EventType,
		entry.RecipientID,
		entry.Channel,
		entry.State,
		entry.Reason,
		entry.Detail,
		entry.ProviderMessageID,
		entry.CreatedAt,
	)
	if err != nil {
		return errors.NewQueryExecutionFailedError("delivery_log insert", err)
	}
	return nil
}
