package models

import (
	"fmt"
	"time"
)

// EmergencyStatus 紧急事件状态
// created → dispatching → completed | partially_failed → resolved | cancelled
type EmergencyStatus string

const (
	StatusCreated         EmergencyStatus = "created"
	StatusDispatching     EmergencyStatus = "dispatching"
	StatusCompleted       EmergencyStatus = "completed"
	StatusPartiallyFailed EmergencyStatus = "partially_failed"
	StatusResolved        EmergencyStatus = "resolved"
	StatusCancelled       EmergencyStatus = "cancelled"
)

// IsTerminal resolved / cancelled 之后不可再修改
func (s EmergencyStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// IsActive 尚未被人工关闭
func (s EmergencyStatus) IsActive() bool {
	return !s.IsTerminal()
}

// CanTransition 校验状态迁移
func (s EmergencyStatus) CanTransition(to EmergencyStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch to {
	case StatusDispatching:
		return s == StatusCreated
	case StatusCompleted:
		// 重试成功后 partially_failed 可转为 completed
		return s == StatusDispatching || s == StatusPartiallyFailed
	case StatusPartiallyFailed:
		return s == StatusDispatching
	case StatusResolved, StatusCancelled:
		return s != StatusCreated
	}
	return false
}

// OutcomeStatus 单次发送结果
type OutcomeStatus string

const (
	OutcomeSent   OutcomeStatus = "sent"
	OutcomeFailed OutcomeStatus = "failed"
)

// NotificationOutcome 某渠道某次尝试的结果，只追加
type NotificationOutcome struct {
	Channel   ChannelType   `json:"channel"`
	Target    string        `json:"target"`
	Attempt   int           `json:"attempt"`
	Status    OutcomeStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Key 渠道 + 目标，用于重试幂等
func (o NotificationOutcome) Key() string {
	return ChannelKey(o.Channel, o.Target)
}

// ChannelKey 构造 "channel:target" 形式的键
func ChannelKey(channel ChannelType, target string) string {
	return fmt.Sprintf("%s:%s", channel, target)
}

// ResponderKind 救援方类型
type ResponderKind string

const (
	ResponderAmbulance ResponderKind = "ambulance"
	ResponderVolunteer ResponderKind = "volunteer"
	ResponderHospital  ResponderKind = "hospital"
)

// Responder 附近救援方
type Responder struct {
	Name    string        `json:"name"`
	Contact string        `json:"contact"`
	Type    ResponderKind `json:"type"`
	ETA     string        `json:"eta"`
}

// Emergency 升级单元
type Emergency struct {
	ID         string                `json:"id"`
	SubjectID  string                `json:"subject_id"`
	Reason     string                `json:"reason"`
	Findings   []Finding             `json:"findings"`
	Vitals     VitalSample           `json:"vitals"`
	Location   *Location             `json:"location,omitempty"`
	Assessment *SeverityAssessment   `json:"assessment,omitempty"`
	Status     EmergencyStatus       `json:"status"`
	CreatedAt  time.Time             `json:"created_at"`
	ResolvedAt *time.Time            `json:"resolved_at,omitempty"`
	Responders []Responder           `json:"responders"`
	Outcomes   []NotificationOutcome `json:"notification_outcomes"`
}

// LastOutcome 返回某渠道键的最后一次结果
func (e *Emergency) LastOutcome(key string) (NotificationOutcome, bool) {
	for i := len(e.Outcomes) - 1; i >= 0; i-- {
		if e.Outcomes[i].Key() == key {
			return e.Outcomes[i], true
		}
	}
	return NotificationOutcome{}, false
}

// HasFailures 是否存在失败且未被后续成功覆盖的渠道
func (e *Emergency) HasFailures() bool {
	seen := make(map[string]bool)
	for i := len(e.Outcomes) - 1; i >= 0; i-- {
		key := e.Outcomes[i].Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if e.Outcomes[i].Status == OutcomeFailed {
			return true
		}
	}
	return false
}

// Clone 深拷贝，存储层返回快照避免外部修改
func (e *Emergency) Clone() *Emergency {
	if e == nil {
		return nil
	}
	c := *e
	c.Vitals = e.Vitals.Clone()
	if e.Findings != nil {
		c.Findings = make([]Finding, len(e.Findings))
		for i, f := range e.Findings {
			if f.Values != nil {
				f.Values = append(make([]float64, 0, len(f.Values)), f.Values...)
			}
			c.Findings[i] = f
		}
	}
	c.Responders = append([]Responder(nil), e.Responders...)
	c.Outcomes = append([]NotificationOutcome(nil), e.Outcomes...)
	if e.Location != nil {
		loc := *e.Location
		c.Location = &loc
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	if e.Assessment != nil {
		a := *e.Assessment
		a.Recommendations = append([]string(nil), e.Assessment.Recommendations...)
		c.Assessment = &a
	}
	return &c
}
