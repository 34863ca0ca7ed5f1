package dispatcher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"rescuenet/internal/models"
	"rescuenet/internal/notify"
)

// TimestampLayout 消息中的时间格式
const TimestampLayout = "2006-01-02 15:04:05 MST"

// EmailSubject 告警邮件标题
const EmailSubject = "Emergency Alert - Immediate Action Required"

// TemplateContext 各渠道共用的渲染上下文，渲染结果只由它决定
type TemplateContext struct {
	EmergencyID    string
	SubjectID      string
	SubjectName    string
	Age            int
	BloodGroup     string
	MedicalHistory string
	DeviceID       string
	Reason         string
	Findings       []models.Finding
	Vitals         models.VitalSample
	Location       *models.Location
	Assessment     *models.SeverityAssessment
	Responders     []models.Responder
	Timestamp      string // 事件创建时间，已按时区格式化
	DashboardURL   string
}

// NewTemplateContext 由事件与档案构造上下文，profile 可为 nil
func NewTemplateContext(e *models.Emergency, profile *models.SubjectProfile, dashboardURL string, loc *time.Location) TemplateContext {
	if loc == nil {
		loc = time.UTC
	}
	tc := TemplateContext{
		EmergencyID:  e.ID,
		SubjectID:    e.SubjectID,
		SubjectName:  e.SubjectID,
		Reason:       e.Reason,
		Findings:     e.Findings,
		Vitals:       e.Vitals,
		Location:     e.Location,
		Assessment:   e.Assessment,
		Responders:   e.Responders,
		Timestamp:    e.CreatedAt.In(loc).Format(TimestampLayout),
		DashboardURL: dashboardURL,
	}
	if profile != nil {
		if name := profile.DisplayName(); name != "" {
			tc.SubjectName = name
		}
		tc.Age = profile.Age
		tc.BloodGroup = profile.BloodGroup
		tc.MedicalHistory = profile.MedicalHistory
		tc.DeviceID = profile.DeviceID
	}
	return tc
}

// Renderer 按渠道类型渲染消息
type Renderer struct {
	smsMaxLength int
}

// NewRenderer smsMaxLength <= 0 表示不截断
func NewRenderer(smsMaxLength int) *Renderer {
	return &Renderer{smsMaxLength: smsMaxLength}
}

// Render 渲染某类渠道的消息
func (r *Renderer) Render(channel models.ChannelType, tc TemplateContext) (notify.Message, error) {
	switch channel {
	case models.ChannelSMS:
		return notify.Message{Body: r.SMS(tc), Format: notify.FormatText, DeviceID: tc.DeviceID}, nil
	case models.ChannelEmail:
		return notify.Message{Subject: EmailSubject, Body: r.Email(tc), Format: notify.FormatText, DeviceID: tc.DeviceID}, nil
	case models.ChannelTelegram:
		return notify.Message{Body: r.Telegram(tc), Format: notify.FormatMarkdown, DeviceID: tc.DeviceID}, nil
	case models.ChannelPush:
		body, err := r.Push(tc)
		if err != nil {
			return notify.Message{}, err
		}
		return notify.Message{Subject: "emergency", Body: body, Format: notify.FormatJSON, DeviceID: tc.DeviceID}, nil
	}
	return notify.Message{}, fmt.Errorf("no template for channel %s", channel)
}

// SMS 紧凑格式，超长截断
func (r *Renderer) SMS(tc TemplateContext) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT - RescueNet\n")
	b.WriteString("User: " + tc.SubjectName + "\n")
	b.WriteString("Time: " + tc.Timestamp + "\n")
	b.WriteString("Reason: " + tc.Reason + "\n")
	if tc.Assessment != nil {
		fmt.Fprintf(&b, "Severity: %s (%d)\n", tc.Assessment.Tier, tc.Assessment.Score)
	}
	for _, line := range compactVitals(tc.Vitals) {
		b.WriteString(line + "\n")
	}
	if tc.Location != nil {
		b.WriteString("Map: " + tc.Location.MapsURL() + "\n")
	}
	b.WriteString("Please respond immediately!\n")
	b.WriteString("Dashboard: " + tc.DashboardURL)
	return truncate(b.String(), r.smsMaxLength)
}

// Email 完整格式
func (r *Renderer) Email(tc TemplateContext) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT\n\n")
	b.WriteString("Patient: " + tc.SubjectName + "\n")
	if tc.Age > 0 {
		fmt.Fprintf(&b, "Age: %d\n", tc.Age)
	} else {
		b.WriteString("Age: Unknown\n")
	}
	b.WriteString("Blood Group: " + orDefault(tc.BloodGroup, "Unknown") + "\n")
	b.WriteString("Medical History: " + orDefault(tc.MedicalHistory, "None specified") + "\n\n")

	b.WriteString("Emergency: " + tc.Reason + "\n")
	if tc.Assessment != nil {
		fmt.Fprintf(&b, "Severity: %s (score %d)\n", tc.Assessment.Tier, tc.Assessment.Score)
	}
	b.WriteString("Time: " + tc.Timestamp + "\n")
	if tc.Location != nil {
		b.WriteString("Location: " + tc.Location.MapsURL() + "\n")
	} else {
		b.WriteString("Location: Not available\n")
	}
	if vitals := fullVitals(tc.Vitals); len(vitals) > 0 {
		b.WriteString(strings.Join(vitals, ", ") + "\n")
	} else {
		b.WriteString("Vitals: Not available\n")
	}

	if len(tc.Findings) > 0 {
		b.WriteString("\nFindings:\n")
		for _, f := range tc.Findings {
			b.WriteString("- " + f.Description + "\n")
		}
	}
	if tc.Assessment != nil && len(tc.Assessment.Recommendations) > 0 {
		b.WriteString("\nRecommended actions:\n")
		for i, rec := range tc.Assessment.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
	}
	if len(tc.Responders) > 0 {
		b.WriteString("\nNearest responders:\n")
		for _, rs := range tc.Responders {
			fmt.Fprintf(&b, "- %s (%s), %s, ETA %s\n", rs.Name, rs.Type, rs.Contact, rs.ETA)
		}
	}

	b.WriteString("\nThis person needs immediate medical attention!\n")
	b.WriteString("Dashboard: " + tc.DashboardURL + "\n")
	return b.String()
}

// Telegram Markdown 格式（Bot API 旧版 Markdown）
func (r *Renderer) Telegram(tc TemplateContext) string {
	var b strings.Builder
	b.WriteString("🚨 *EMERGENCY ALERT*\n")
	b.WriteString("*Patient:* " + escapeMarkdown(tc.SubjectName) + "\n")
	b.WriteString("*Reason:* " + escapeMarkdown(tc.Reason) + "\n")
	if tc.Assessment != nil {
		fmt.Fprintf(&b, "*Severity:* %s (%d)\n", tc.Assessment.Tier, tc.Assessment.Score)
	}
	if vitals := compactVitals(tc.Vitals); len(vitals) > 0 {
		b.WriteString("*Vitals:* " + escapeMarkdown(strings.Join(vitals, ", ")) + "\n")
	}
	if tc.Location != nil {
		b.WriteString("*Location:* [Open map](" + tc.Location.MapsURL() + ")\n")
	}
	b.WriteString("*Time:* " + tc.Timestamp + "\n")
	b.WriteString("*Emergency ID:* `" + tc.EmergencyID + "`")
	return b.String()
}

// pushPayload 仪表盘推送的 JSON 结构
type pushPayload struct {
	Type        string              `json:"type"`
	EmergencyID string              `json:"emergency_id"`
	SubjectID   string              `json:"subject_id"`
	SubjectName string              `json:"subject_name"`
	Reason      string              `json:"reason"`
	Tier        models.SeverityTier `json:"tier,omitempty"`
	Score       int                 `json:"score"`
	Findings    []models.Finding    `json:"findings"`
	Vitals      models.VitalSample  `json:"vitals"`
	Location    *models.Location    `json:"location,omitempty"`
	MapsURL     string              `json:"maps_url,omitempty"`
	Timestamp   string              `json:"timestamp"`
	Dashboard   string              `json:"dashboard_url"`
}

// Push JSON 格式
func (r *Renderer) Push(tc TemplateContext) (string, error) {
	p := pushPayload{
		Type:        "emergency",
		EmergencyID: tc.EmergencyID,
		SubjectID:   tc.SubjectID,
		SubjectName: tc.SubjectName,
		Reason:      tc.Reason,
		Findings:    tc.Findings,
		Vitals:      tc.Vitals,
		Location:    tc.Location,
		Timestamp:   tc.Timestamp,
		Dashboard:   tc.DashboardURL,
	}
	if p.Findings == nil {
		p.Findings = []models.Finding{}
	}
	if tc.Assessment != nil {
		p.Tier = tc.Assessment.Tier
		p.Score = tc.Assessment.Score
	}
	if tc.Location != nil {
		p.MapsURL = tc.Location.MapsURL()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal push payload: %w", err)
	}
	return string(body), nil
}

func compactVitals(v models.VitalSample) []string {
	var lines []string
	if v.HeartRate != nil {
		lines = append(lines, "HR: "+models.FormatValue(*v.HeartRate)+" BPM")
	}
	if v.Temperature != nil {
		lines = append(lines, "Temp: "+models.FormatValue(*v.Temperature)+"°C")
	}
	if bp := v.BloodPressure; bp != nil {
		lines = append(lines, "BP: "+models.FormatValue(bp.Systolic)+"/"+models.FormatValue(bp.Diastolic))
	}
	if v.SpO2 != nil {
		lines = append(lines, "SpO2: "+models.FormatValue(*v.SpO2)+"%")
	}
	return lines
}

func fullVitals(v models.VitalSample) []string {
	var parts []string
	if v.HeartRate != nil {
		parts = append(parts, "Heart Rate: "+models.FormatValue(*v.HeartRate)+" BPM")
	}
	if v.Temperature != nil {
		parts = append(parts, "Temperature: "+models.FormatValue(*v.Temperature)+"°C")
	}
	if bp := v.BloodPressure; bp != nil {
		parts = append(parts, "Blood Pressure: "+models.FormatValue(bp.Systolic)+"/"+models.FormatValue(bp.Diastolic)+" mmHg")
	}
	if v.SpO2 != nil {
		parts = append(parts, "SpO2: "+models.FormatValue(*v.SpO2)+"%")
	}
	return parts
}

// truncate 按字符截断，末尾加 "..."
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
