package dispatcher

import (
	"fmt"
	"sort"
	"strings"

	"rescuenet/internal/models"
)

// PushTarget 仪表盘推送的固定目标名
const PushTarget = "dashboard"

// Target 一个通知目标
type Target struct {
	Channel models.ChannelType
	Address string
}

// Key 渠道键 "channel:address"
func (t Target) Key() string {
	return models.ChannelKey(t.Channel, t.Address)
}

// ParseChannelKey 解析 "channel:address"
func ParseChannelKey(key string) (Target, error) {
	channel, address, ok := strings.Cut(key, ":")
	if !ok || channel == "" || address == "" {
		return Target{}, fmt.Errorf("invalid channel key %q", key)
	}
	return Target{Channel: models.ChannelType(channel), Address: address}, nil
}

// TargetOptions 联系人之外的可选目标
type TargetOptions struct {
	NotifySubjectEmail     bool
	OpsChatID              string
	EmergencyServicesPhone string
	Push                   bool
}

// EnumerateTargets 列出某个被监护人的全部通知目标（已去重，顺序稳定）
// 联系人按首选渠道通知，首选渠道缺少地址时回落到短信；主联系人排在前面
func EnumerateTargets(profile *models.SubjectProfile, opts TargetOptions) []Target {
	var targets []Target
	seen := make(map[string]bool)
	add := func(t Target) {
		if t.Address == "" || seen[t.Key()] {
			return
		}
		seen[t.Key()] = true
		targets = append(targets, t)
	}

	if profile != nil {
		contacts := append([]models.EmergencyContact(nil), profile.Contacts...)
		sort.SliceStable(contacts, func(i, j int) bool {
			return contacts[i].IsPrimary && !contacts[j].IsPrimary
		})
		for _, c := range contacts {
			if t, ok := contactTarget(c); ok {
				add(t)
			}
		}
		if opts.NotifySubjectEmail {
			add(Target{Channel: models.ChannelEmail, Address: profile.Email})
		}
	}

	add(Target{Channel: models.ChannelTelegram, Address: opts.OpsChatID})
	add(Target{Channel: models.ChannelSMS, Address: opts.EmergencyServicesPhone})
	if opts.Push {
		add(Target{Channel: models.ChannelPush, Address: PushTarget})
	}
	return targets
}

func contactTarget(c models.EmergencyContact) (Target, bool) {
	switch c.Channel {
	case models.ChannelEmail:
		if c.Email != "" {
			return Target{Channel: models.ChannelEmail, Address: c.Email}, true
		}
	case models.ChannelTelegram:
		if c.ChatID != "" {
			return Target{Channel: models.ChannelTelegram, Address: c.ChatID}, true
		}
	}
	if c.Phone != "" {
		return Target{Channel: models.ChannelSMS, Address: c.Phone}, true
	}
	return Target{}, false
}
