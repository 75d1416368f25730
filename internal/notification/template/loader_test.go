package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-notifications/internal/common/errors"
	"booking-notifications/internal/common/logger"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newTestLoader(t *testing.T, dir string) (*Loader, *Store) {
	t.Helper()
	store := NewStore()
	l, err := NewLoader(dir, store, logger.NewTestLogger(t))
	require.NoError(t, err)
	return l, store
}

func TestLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "confirmation_sms.json", `{
		"id": "booking_confirmation_sms",
		"event_type": "booking_confirmation",
		"channel": "sms",
		"body": "Booked: {{ court }} at {{ start_time }}"
	}`)
	writeManifest(t, dir, "confirmation_email_html.json", `{
		"id": "booking_confirmation_email_html",
		"event_type": "booking_confirmation",
		"channel": "email-html",
		"subject": "Your booking at {{ venue }}",
		"body": "<p>Hi {{ first_name }}</p>"
	}`)
	writeManifest(t, dir, "notes.txt", "not a manifest, ignored")

	l, store := newTestLoader(t, dir)
	require.NoError(t, l.Reload())

	assert.Equal(t, 2, store.Len())
	tpl, err := store.Get("booking_confirmation", ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, []string{"court", "start_time"}, tpl.RequiredVariables)
}

func TestLoader_SchemaRejection(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"missing body", `{"id": "x", "event_type": "e", "channel": "sms"}`},
		{"unknown channel", `{"id": "x", "event_type": "e", "channel": "push", "body": "b"}`},
		{"unknown field", `{"id": "x", "event_type": "e", "channel": "sms", "body": "b", "locale": "en"}`},
		{"not json", `{"id": "x",`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, "bad.json", tt.manifest)

			l, store := newTestLoader(t, dir)
			err := l.Reload()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeTemplateInvalid))
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestLoader_BadGrammarRejectsWholeReload(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "good.json", `{
		"id": "good", "event_type": "booking_reminder", "channel": "sms",
		"body": "Reminder for {{ court }}"
	}`)
	writeManifest(t, dir, "z_bad.json", `{
		"id": "bad", "event_type": "booking_cancellation", "channel": "sms",
		"body": "{% for x in %}broken{% endfor %}"
	}`)

	l, store := newTestLoader(t, dir)

	// Seed a previous good set; the failed reload must leave it serving.
	prev, err := New("prev", "booking_reminder", ChannelSMS, "", "old body")
	require.NoError(t, err)
	store.Register(prev)

	require.Error(t, l.Reload())
	got, err := store.Get("booking_reminder", ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "prev", got.ID)
}

func TestLoader_MissingDirectory(t *testing.T) {
	l, _ := newTestLoader(t, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, l.Reload())
}
