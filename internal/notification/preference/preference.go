// Package preference decides whether a recipient may be contacted on a given
// channel for a given notification category. The essential category is
// reserved for messages confirming an action the recipient just took and can
// never be switched off.
package preference

import (
	"time"

	"booking-notifications/internal/common/errors"
)

type Category string

const (
	CategoryEssential            Category = "essential"
	CategoryAppointmentReminders Category = "appointment_reminders"
	CategoryMarketingEmails      Category = "marketing_emails"
)

// Channels a recipient can be reached on.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// RecipientPreference is a recipient's stored opt-in state. Channel switches
// and category flags gate independently; a channel is permitted only when
// both its switch and the category's flag are on.
type RecipientPreference struct {
	RecipientID          string    `json:"recipient_id"`
	EmailEnabled         bool      `json:"email_enabled"`
	SMSEnabled           bool      `json:"sms_enabled"`
	AppointmentReminders bool      `json:"appointment_reminders"`
	MarketingEmails      bool      `json:"marketing_emails"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Defaults returns the record used for recipients with no stored preference:
// transactional traffic on, marketing off.
func Defaults(recipientID string) *RecipientPreference {
	return &RecipientPreference{
		RecipientID:          recipientID,
		EmailEnabled:         true,
		SMSEnabled:           true,
		AppointmentReminders: true,
		MarketingEmails:      false,
	}
}

func (p *RecipientPreference) channelEnabled(channel string) (bool, error) {
	switch channel {
	case ChannelEmail:
		return p.EmailEnabled, nil
	case ChannelSMS:
		return p.SMSEnabled, nil
	default:
		return false, errors.NewPreferenceInvalidError("unknown channel: " + channel)
	}
}

func (p *RecipientPreference) categoryEnabled(category Category) (bool, error) {
	switch category {
	case CategoryEssential:
		return true, nil
	case CategoryAppointmentReminders:
		return p.AppointmentReminders, nil
	case CategoryMarketingEmails:
		return p.MarketingEmails, nil
	default:
		return false, errors.NewPreferenceInvalidError("unknown category: " + string(category))
	}
}

// Patch is a partial preference update. Nil fields are left untouched.
// Essential exists only so an explicit attempt to disable it can be rejected
// rather than silently dropped.
type Patch struct {
	EmailEnabled         *bool `json:"email_enabled,omitempty"`
	SMSEnabled           *bool `json:"sms_enabled,omitempty"`
	AppointmentReminders *bool `json:"appointment_reminders,omitempty"`
	MarketingEmails      *bool `json:"marketing_emails,omitempty"`
	Essential            *bool `json:"essential,omitempty"`
}

func (p *RecipientPreference) apply(patch Patch) {
	if patch.EmailEnabled != nil {
		p.EmailEnabled = *patch.EmailEnabled
	}
	if patch.SMSEnabled != nil {
		p.SMSEnabled = *patch.SMSEnabled
	}
	if patch.AppointmentReminders != nil {
		p.AppointmentReminders = *patch.AppointmentReminders
	}
	if patch.MarketingEmails != nil {
		p.MarketingEmails = *patch.MarketingEmails
	}
}
