package dispatcher

import (
	"testing"

	"rescuenet/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateTargets(t *testing.T) {
	profile := &models.SubjectProfile{
		SubjectID: "s-1",
		Email:     "ann@example.com",
		Contacts: []models.EmergencyContact{
			{Name: "Bob", Phone: "+15550002"},
			{Name: "Carol", Email: "carol@example.com", Channel: models.ChannelEmail, IsPrimary: true},
			{Name: "Dan", Phone: "+15550003", Channel: models.ChannelTelegram}, // 无 chat id，回落短信
			{Name: "Eve", ChatID: "4242", Channel: models.ChannelTelegram},
			{Name: "Bob again", Phone: "+15550002"},
			{Name: "Nobody"},
		},
	}

	got := EnumerateTargets(profile, TargetOptions{
		NotifySubjectEmail:     true,
		OpsChatID:              "-100ops",
		EmergencyServicesPhone: "911",
		Push:                   true,
	})

	assert.Equal(t, []Target{
		{Channel: models.ChannelEmail, Address: "carol@example.com"},
		{Channel: models.ChannelSMS, Address: "+15550002"},
		{Channel: models.ChannelSMS, Address: "+15550003"},
		{Channel: models.ChannelTelegram, Address: "4242"},
		{Channel: models.ChannelEmail, Address: "ann@example.com"},
		{Channel: models.ChannelTelegram, Address: "-100ops"},
		{Channel: models.ChannelSMS, Address: "911"},
		{Channel: models.ChannelPush, Address: PushTarget},
	}, got)
}

func TestEnumerateTargets_OptionalTargetsOff(t *testing.T) {
	profile := &models.SubjectProfile{
		Email:    "ann@example.com",
		Contacts: []models.EmergencyContact{{Phone: "+15550002"}},
	}
	got := EnumerateTargets(profile, TargetOptions{})
	assert.Equal(t, []Target{{Channel: models.ChannelSMS, Address: "+15550002"}}, got)

	assert.Empty(t, EnumerateTargets(nil, TargetOptions{}))
}

func TestParseChannelKey(t *testing.T) {
	target, err := ParseChannelKey("sms:+15550002")
	require.NoError(t, err)
	assert.Equal(t, Target{Channel: models.ChannelSMS, Address: "+15550002"}, target)
	assert.Equal(t, "sms:+15550002", target.Key())

	// 地址中可以包含冒号
	target, err = ParseChannelKey("telegram:chat:1")
	require.NoError(t, err)
	assert.Equal(t, "chat:1", target.Address)

	for _, bad := range []string{"", "sms", "sms:", ":x"} {
		_, err := ParseChannelKey(bad)
		assert.Error(t, err, bad)
	}
}
