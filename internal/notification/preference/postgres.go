// internal/notification/preference/postgres.go
package preference

import (
	"context"
	"database/sql"

	"booking-notifications/internal/common/errors"
)

// PostgresStore persists recipient preferences in the recipient_preferences
// table:
//
//	CREATE TABLE recipient_preferences (
//	    recipient_id          TEXT PRIMARY KEY,
//	    email_enabled         BOOLEAN NOT NULL,
//	    sms_enabled           BOOLEAN NOT NULL,
//	    appointment_reminders BOOLEAN NOT NULL,
//	    marketing_emails      BOOLEAN NOT NULL,
//	    updated_at            TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const loadQuery = `
	SELECT recipient_id, email_enabled, sms_enabled, appointment_reminders, marketing_emails, updated_at
	FROM recipient_preferences
	WHERE recipient_id = $1`

func (s *PostgresStore) Load(ctx context.Context, recipientID string) (*RecipientPreference, error) {
	var pref RecipientPreference
	err := s.db.QueryRowContext(ctx, loadQuery, recipientID).Scan(
		&pref.RecipientID,
		&pref.EmailEnabled,
		&pref.SMSEnabled,
		&pref.AppointmentReminders,
		&pref.MarketingEmails,
		&pref.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewPreferenceLoadFailedError(recipientID, err)
	}
	return &pref, nil
}

const saveQuery = `
	INSERT INTO recipient_preferences
		(recipient_id, email_enabled, sms_enabled, appointment_reminders, marketing_emails, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (recipient_id) DO UPDATE SET
		email_enabled = EXCLUDED.email_enabled,
		sms_enabled = EXCLUDED.sms_enabled,
		appointment_reminders = EXCLUDED.appointment_reminders,
		marketing_emails = EXCLUDED.marketing_emails,
		updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) Save(ctx context.Context, pref *RecipientPreference) error {
	_, err := s.db.ExecContext(ctx, saveQuery,
		pref.RecipientID,
		pref.EmailEnabled,
		pref.SMSEnabled,
		pref.AppointmentReminders,
		pref.MarketingEmails,
		pref.UpdatedAt,
	)
	if err != nil {
		return errors.NewPreferenceSaveFailedError(pref.RecipientID, err)
	}
	return nil
}
