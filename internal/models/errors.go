package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData 窗口样本不足
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDuplicateEscalation 同一 emergency id 的重复触发
	ErrDuplicateEscalation = errors.New("emergency already escalated")
	// ErrEmergencyNotFound 紧急事件不存在
	ErrEmergencyNotFound = errors.New("emergency not found")
	// ErrInvalidTransition 非法状态迁移（例如终态后再修改）
	ErrInvalidTransition = errors.New("invalid emergency status transition")
	// ErrProfileNotFound 用户档案不存在
	ErrProfileNotFound = errors.New("subject profile not found")
	// ErrDuplicateOutcome 同一 (emergency, 渠道键, attempt) 的结果已存在
	ErrDuplicateOutcome = errors.New("notification outcome already recorded")
	// ErrRetryNotAllowed 目标最近一次发送未失败，或该 attempt 已占用
	ErrRetryNotAllowed = errors.New("channel retry not allowed")
)

// InputError 样本中某个指标格式错误，只跳过该指标
type InputError struct {
	Metric string
	Reason string
}

func (e InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Metric, e.Reason)
}
