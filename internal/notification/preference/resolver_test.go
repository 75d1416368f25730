package preference

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-notifications/internal/common/errors"
	"booking-notifications/internal/common/logger"
)

type mockStore struct {
	LoadFunc func(ctx context.Context, recipientID string) (*RecipientPreference, error)
	SaveFunc func(ctx context.Context, pref *RecipientPreference) error
	saved    []*RecipientPreference
	loads    int
}

func (m *mockStore) Load(ctx context.Context, recipientID string) (*RecipientPreference, error) {
	m.loads++
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, recipientID)
	}
	return nil, nil
}

func (m *mockStore) Save(ctx context.Context, pref *RecipientPreference) error {
	m.saved = append(m.saved, pref)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, pref)
	}
	return nil
}

type mockCache struct {
	entries map[string]*RecipientPreference
	GetFunc func(ctx context.Context, recipientID string) (*RecipientPreference, error)
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]*RecipientPreference{}}
}

func (m *mockCache) Get(ctx context.Context, recipientID string) (*RecipientPreference, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, recipientID)
	}
	return m.entries[recipientID], nil
}

func (m *mockCache) Set(ctx context.Context, pref *RecipientPreference) error {
	m.entries[pref.RecipientID] = pref
	return nil
}

func (m *mockCache) Del(ctx context.Context, recipientID string) error {
	m.deleted = append(m.deleted, recipientID)
	delete(m.entries, recipientID)
	return nil
}

func boolPtr(b bool) *bool { return &b }

func newTestResolver(t *testing.T, store Store, cache Cache) *Resolver {
	t.Helper()
	return NewResolver(store, cache, logger.NewTestLogger(t))
}

func TestIsAllowed_EssentialOverridesEverything(t *testing.T) {
	store := &mockStore{
		LoadFunc: func(ctx context.Context, recipientID string) (*RecipientPreference, error) {
			return &RecipientPreference{
				RecipientID:          recipientID,
				EmailEnabled:         false,
				SMSEnabled:           false,
				AppointmentReminders: false,
				MarketingEmails:      false,
			}, nil
		},
	}
	r := newTestResolver(t, store, newMockCache())

	for _, channel := range []string{ChannelEmail, ChannelSMS} {
		ok, err := r.IsAllowed(context.Background(), "rec-1", CategoryEssential, channel)
		require.NoError(t, err)
		assert.True(t, ok, "essential must be allowed on %s", channel)
	}
	assert.Equal(t, 0, store.loads, "essential decisions must not touch the store")
}

func TestIsAllowed_CategoryAndChannelBothGate(t *testing.T) {
	tests := []struct {
		name     string
		pref     *RecipientPreference
		category Category
		channel  string
		want     bool
	}{
		{
			name:     "both flags on",
			pref:     &RecipientPreference{EmailEnabled: true, AppointmentReminders: true},
			category: CategoryAppointmentReminders,
			channel:  ChannelEmail,
			want:     true,
		},
		{
			name:     "category on, channel off",
			pref:     &RecipientPreference{EmailEnabled: false, AppointmentReminders: true},
			category: CategoryAppointmentReminders,
			channel:  ChannelEmail,
			want:     false,
		},
		{
			name:     "category off, channel on",
			pref:     &RecipientPreference{SMSEnabled: true, MarketingEmails: false},
			category: CategoryMarketingEmails,
			channel:  ChannelSMS,
			want:     false,
		},
		{
			name:     "channels independent",
			pref:     &RecipientPreference{EmailEnabled: false, SMSEnabled: true, AppointmentReminders: true},
			category: CategoryAppointmentReminders,
			channel:  ChannelSMS,
			want:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{
				LoadFunc: func(ctx context.Context, recipientID string) (*RecipientPreference, error) {
					p := *tt.pref
					p.RecipientID = recipientID
					return &p, nil
				},
			}
			r := newTestResolver(t, store, newMockCache())
			ok, err := r.IsAllowed(context.Background(), "rec-1", tt.category, tt.channel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestIsAllowed_DefaultsWhenNoRecord(t *testing.T) {
	r := newTestResolver(t, &mockStore{}, newMockCache())

	ok, err := r.IsAllowed(context.Background(), "new-user", CategoryAppointmentReminders, ChannelEmail)
	require.NoError(t, err)
	assert.True(t, ok, "transactional traffic defaults on")

	ok, err = r.IsAllowed(context.Background(), "new-user", CategoryMarketingEmails, ChannelEmail)
	require.NoError(t, err)
	assert.False(t, ok, "marketing defaults off")
}

func TestIsAllowed_UnknownCategoryAndChannel(t *testing.T) {
	r := newTestResolver(t, &mockStore{}, newMockCache())

	_, err := r.IsAllowed(context.Background(), "rec-1", Category("push_spam"), ChannelEmail)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePreferenceInvalid))

	_, err = r.IsAllowed(context.Background(), "rec-1", CategoryAppointmentReminders, "fax")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePreferenceInvalid))
}

func TestIsAllowed_ReadThroughCache(t *testing.T) {
	store := &mockStore{
		LoadFunc: func(ctx context.Context, recipientID string) (*RecipientPreference, error) {
			return &RecipientPreference{RecipientID: recipientID, EmailEnabled: true, AppointmentReminders: true}, nil
		},
	}
	cache := newMockCache()
	r := newTestResolver(t, store, cache)

	for i := 0; i < 3; i++ {
		ok, err := r.IsAllowed(context.Background(), "rec-1", CategoryAppointmentReminders, ChannelEmail)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, store.loads, "repeat lookups must be served from cache")
}

func TestIsAllowed_CacheFailureFallsThroughToStore(t *testing.T) {
	store := &mockStore{
		LoadFunc: func(ctx context.Context, recipientID string) (*RecipientPreference, error) {
			return &RecipientPreference{RecipientID: recipientID, SMSEnabled: true, AppointmentReminders: true}, nil
		},
	}
	cache := newMockCache()
	cache.GetFunc = func(ctx context.Context, recipientID string) (*RecipientPreference, error) {
		return nil, fmt.Errorf("redis: connection refused")
	}
	r := newTestResolver(t, store, cache)

	ok, err := r.IsAllowed(context.Background(), "rec-1", CategoryAppointmentReminders, ChannelSMS)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, store.loads)
}

func TestUpdate_RejectsDisablingEssential(t *testing.T) {
	store := &mockStore{}
	r := newTestResolver(t, store, newMockCache())

	_, err := r.Update(context.Background(), "rec-1", Patch{Essential: boolPtr(false)})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePreferenceInvalid))
	assert.Empty(t, store.saved, "rejected patch must not be written")
}

func TestUpdate_MergesPatchAndInvalidatesCache(t *testing.T) {
	current := &RecipientPreference{
		RecipientID:          "rec-1",
		EmailEnabled:         true,
		SMSEnabled:           true,
		AppointmentReminders: true,
		MarketingEmails:      true,
	}
	store := &mockStore{
		LoadFunc: func(ctx context.Context, recipientID string) (*RecipientPreference, error) {
			p := *current
			return &p, nil
		},
	}
	cache := newMockCache()
	cache.entries["rec-1"] = current
	r := newTestResolver(t, store, cache)

	got, err := r.Update(context.Background(), "rec-1", Patch{MarketingEmails: boolPtr(false)})
	require.NoError(t, err)

	assert.False(t, got.MarketingEmails)
	assert.True(t, got.AppointmentReminders, "untouched flags survive the merge")
	assert.True(t, got.EmailEnabled)
	assert.False(t, got.UpdatedAt.IsZero())
	require.Len(t, store.saved, 1)
	assert.Equal(t, []string{"rec-1"}, cache.deleted)
}

func TestUpdate_CreatesRecordFromDefaults(t *testing.T) {
	store := &mockStore{}
	r := newTestResolver(t, store, newMockCache())

	got, err := r.Update(context.Background(), "fresh", Patch{SMSEnabled: boolPtr(false)})
	require.NoError(t, err)

	assert.False(t, got.SMSEnabled)
	assert.True(t, got.EmailEnabled)
	assert.True(t, got.AppointmentReminders)
	assert.False(t, got.MarketingEmails)
}

func TestUpdate_Isolation(t *testing.T) {
	records := map[string]*RecipientPreference{
		"a": {RecipientID: "a", EmailEnabled: true, SMSEnabled: true, AppointmentReminders: true, MarketingEmails: true},
		"b": {RecipientID: "b", EmailEnabled: true, SMSEnabled: true, AppointmentReminders: true, MarketingEmails: true},
	}
	store := &mockStore{
		LoadFunc: func(ctx context.Context, recipientID string) (*RecipientPreference, error) {
			if rec, ok := records[recipientID]; ok {
				p := *rec
				return &p, nil
			}
			return nil, nil
		},
		SaveFunc: func(ctx context.Context, pref *RecipientPreference) error {
			p := *pref
			records[pref.RecipientID] = &p
			return nil
		},
	}
	r := newTestResolver(t, store, newMockCache())

	_, err := r.Update(context.Background(), "a", Patch{MarketingEmails: boolPtr(false)})
	require.NoError(t, err)

	assert.True(t, records["a"].AppointmentReminders, "other flags for A untouched")
	assert.True(t, records["b"].MarketingEmails, "B untouched entirely")
}
