package models

// ChannelType 通知渠道类型
type ChannelType string

const (
	ChannelSMS      ChannelType = "sms"
	ChannelEmail    ChannelType = "email"
	ChannelTelegram ChannelType = "telegram"
	ChannelPush     ChannelType = "push"
)

// EmergencyContact 紧急联系人
type EmergencyContact struct {
	Name      string      `json:"name"`
	Phone     string      `json:"phone,omitempty"`
	Email     string      `json:"email,omitempty"`
	ChatID    string      `json:"chat_id,omitempty"`
	Channel   ChannelType `json:"channel,omitempty"` // 空值按 sms 处理
	IsPrimary bool        `json:"is_primary"`
}

// SubjectProfile 被监护人档案（账户服务维护，本服务只读）
type SubjectProfile struct {
	SubjectID           string             `json:"subject_id"`
	Name                string             `json:"name"`
	Phone               string             `json:"phone"`
	Email               string             `json:"email,omitempty"`
	Age                 int                `json:"age"`
	Sex                 string             `json:"sex"` // "M" / "F"
	BloodGroup          string             `json:"blood_group,omitempty"`
	MedicalHistory      string             `json:"medical_history,omitempty"`
	BaselineHeartRate   float64            `json:"baseline_heart_rate,omitempty"`
	BaselineTemperature float64            `json:"baseline_temperature,omitempty"`
	DeviceID            string             `json:"device_id,omitempty"`
	Contacts            []EmergencyContact `json:"contacts"`
}

// DisplayName 优先姓名，其次电话
func (p SubjectProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Phone
}
