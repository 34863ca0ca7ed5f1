package dispatcher

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"rescuenet/internal/models"
	"rescuenet/internal/notify"
	"rescuenet/internal/severity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var createdAt = time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)

func sampleEmergency() *models.Emergency {
	return &models.Emergency{
		ID:        "e-1",
		SubjectID: "s-1",
		Reason:    "Health anomaly detected: Abnormal heart rate: 140 BPM",
		Findings: []models.Finding{{
			Kind:        models.FindingHeartRate,
			Metric:      models.MetricHeartRate,
			Values:      []float64{140},
			Description: "Abnormal heart rate: 140 BPM",
		}},
		Vitals: models.VitalSample{
			SubjectID:     "s-1",
			Timestamp:     createdAt.Add(-30 * time.Second),
			HeartRate:     models.Float64(140),
			Temperature:   models.Float64(37),
			BloodPressure: &models.BloodPressure{Systolic: 120, Diastolic: 80},
		},
		Location: &models.Location{Lat: 12.971599, Lng: 77.594566},
		Assessment: &models.SeverityAssessment{
			Score:           4,
			Tier:            models.TierHigh,
			Recommendations: severity.Recommendations(models.TierHigh),
		},
		Status:    models.StatusDispatching,
		CreatedAt: createdAt,
		Responders: []models.Responder{
			{Name: "AMB-001", Contact: "+1-555-AMBULANCE", Type: models.ResponderAmbulance, ETA: "8-10 minutes"},
		},
	}
}

func sampleProfile() *models.SubjectProfile {
	return &models.SubjectProfile{
		SubjectID:  "s-1",
		Name:       "Ann Lee",
		Phone:      "+15550001",
		Email:      "ann@example.com",
		Age:        70,
		BloodGroup: "O+",
		DeviceID:   "esp32-01",
	}
}

func sampleContext() TemplateContext {
	return NewTemplateContext(sampleEmergency(), sampleProfile(), "http://dash.local", time.UTC)
}

func TestNewTemplateContext(t *testing.T) {
	tc := sampleContext()
	assert.Equal(t, "Ann Lee", tc.SubjectName)
	assert.Equal(t, "2026-03-02 08:15:00 UTC", tc.Timestamp)
	assert.Equal(t, "esp32-01", tc.DeviceID)

	// 无档案时用 subject id 作为名称
	tc = NewTemplateContext(sampleEmergency(), nil, "", nil)
	assert.Equal(t, "s-1", tc.SubjectName)

	loc := time.FixedZone("IST", 5*3600+1800)
	tc = NewTemplateContext(sampleEmergency(), nil, "", loc)
	assert.Equal(t, "2026-03-02 13:45:00 IST", tc.Timestamp)
}

func TestRenderer_SMS(t *testing.T) {
	want := "EMERGENCY ALERT - RescueNet\n" +
		"User: Ann Lee\n" +
		"Time: 2026-03-02 08:15:00 UTC\n" +
		"Reason: Health anomaly detected: Abnormal heart rate: 140 BPM\n" +
		"Severity: HIGH (4)\n" +
		"HR: 140 BPM\n" +
		"Temp: 37°C\n" +
		"BP: 120/80\n" +
		"Map: https://maps.google.com/maps?q=12.971599,77.594566\n" +
		"Please respond immediately!\n" +
		"Dashboard: http://dash.local"

	assert.Equal(t, want, NewRenderer(480).SMS(sampleContext()))
}

func TestRenderer_SMSTruncated(t *testing.T) {
	got := NewRenderer(40).SMS(sampleContext())
	assert.Equal(t, 40, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, strings.HasPrefix(got, "EMERGENCY ALERT - RescueNet\nUser: "))
}

func TestRenderer_Email(t *testing.T) {
	want := "EMERGENCY ALERT\n\n" +
		"Patient: Ann Lee\n" +
		"Age: 70\n" +
		"Blood Group: O+\n" +
		"Medical History: None specified\n\n" +
		"Emergency: Health anomaly detected: Abnormal heart rate: 140 BPM\n" +
		"Severity: HIGH (score 4)\n" +
		"Time: 2026-03-02 08:15:00 UTC\n" +
		"Location: https://maps.google.com/maps?q=12.971599,77.594566\n" +
		"Heart Rate: 140 BPM, Temperature: 37°C, Blood Pressure: 120/80 mmHg\n" +
		"\nFindings:\n" +
		"- Abnormal heart rate: 140 BPM\n" +
		"\nRecommended actions:\n" +
		"1. Priority emergency response\n" +
		"2. Dispatch ambulance\n" +
		"3. Notify emergency department\n" +
		"4. Monitor continuously\n" +
		"\nNearest responders:\n" +
		"- AMB-001 (ambulance), +1-555-AMBULANCE, ETA 8-10 minutes\n" +
		"\nThis person needs immediate medical attention!\n" +
		"Dashboard: http://dash.local\n"

	assert.Equal(t, want, NewRenderer(480).Email(sampleContext()))
}

func TestRenderer_EmailMinimal(t *testing.T) {
	e := &models.Emergency{ID: "e-2", SubjectID: "s-2", Reason: "SOS", CreatedAt: createdAt}
	got := NewRenderer(0).Email(NewTemplateContext(e, nil, "http://dash.local", time.UTC))

	want := "EMERGENCY ALERT\n\n" +
		"Patient: s-2\n" +
		"Age: Unknown\n" +
		"Blood Group: Unknown\n" +
		"Medical History: None specified\n\n" +
		"Emergency: SOS\n" +
		"Time: 2026-03-02 08:15:00 UTC\n" +
		"Location: Not available\n" +
		"Vitals: Not available\n" +
		"\nThis person needs immediate medical attention!\n" +
		"Dashboard: http://dash.local\n"
	assert.Equal(t, want, got)
}

func TestRenderer_Telegram(t *testing.T) {
	want := "🚨 *EMERGENCY ALERT*\n" +
		"*Patient:* Ann Lee\n" +
		"*Reason:* Health anomaly detected: Abnormal heart rate: 140 BPM\n" +
		"*Severity:* HIGH (4)\n" +
		"*Vitals:* HR: 140 BPM, Temp: 37°C, BP: 120/80\n" +
		"*Location:* [Open map](https://maps.google.com/maps?q=12.971599,77.594566)\n" +
		"*Time:* 2026-03-02 08:15:00 UTC\n" +
		"*Emergency ID:* `e-1`"

	assert.Equal(t, want, NewRenderer(480).Telegram(sampleContext()))
}

func TestRenderer_TelegramEscapesUserText(t *testing.T) {
	tc := sampleContext()
	tc.SubjectName = "ann_lee*"
	assert.Contains(t, NewRenderer(0).Telegram(tc), "*Patient:* ann\\_lee\\*\n")
}

func TestRenderer_Push(t *testing.T) {
	got, err := NewRenderer(480).Push(sampleContext())
	require.NoError(t, err)

	want := `{
		"type": "emergency",
		"emergency_id": "e-1",
		"subject_id": "s-1",
		"subject_name": "Ann Lee",
		"reason": "Health anomaly detected: Abnormal heart rate: 140 BPM",
		"tier": "HIGH",
		"score": 4,
		"findings": [{"kind": "heart_rate", "metric": "heart_rate", "values": [140], "description": "Abnormal heart rate: 140 BPM"}],
		"vitals": {
			"subject_id": "s-1",
			"timestamp": "2026-03-02T08:14:30Z",
			"heart_rate": 140,
			"temperature": 37,
			"blood_pressure": {"systolic": 120, "diastolic": 80}
		},
		"location": {"lat": 12.971599, "lng": 77.594566},
		"maps_url": "https://maps.google.com/maps?q=12.971599,77.594566",
		"timestamp": "2026-03-02 08:15:00 UTC",
		"dashboard_url": "http://dash.local"
	}`
	assert.JSONEq(t, want, got)
}

func TestRenderer_Deterministic(t *testing.T) {
	r := NewRenderer(480)
	for _, ch := range []models.ChannelType{models.ChannelSMS, models.ChannelEmail, models.ChannelTelegram, models.ChannelPush} {
		a, err := r.Render(ch, sampleContext())
		require.NoError(t, err)
		b, err := r.Render(ch, sampleContext())
		require.NoError(t, err)
		assert.Equal(t, a, b, string(ch))
	}
}

func TestRenderer_RenderFormats(t *testing.T) {
	r := NewRenderer(480)

	msg, err := r.Render(models.ChannelEmail, sampleContext())
	require.NoError(t, err)
	assert.Equal(t, EmailSubject, msg.Subject)
	assert.Equal(t, notify.FormatText, msg.Format)

	msg, err = r.Render(models.ChannelTelegram, sampleContext())
	require.NoError(t, err)
	assert.Equal(t, notify.FormatMarkdown, msg.Format)

	msg, err = r.Render(models.ChannelSMS, sampleContext())
	require.NoError(t, err)
	assert.Equal(t, "esp32-01", msg.DeviceID)

	_, err = r.Render(models.ChannelType("fax"), sampleContext())
	assert.Error(t, err)
}
