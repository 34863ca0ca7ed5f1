package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmergencyStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusCreated.CanTransition(StatusDispatching))
	assert.False(t, StatusCreated.CanTransition(StatusResolved))
	assert.False(t, StatusCreated.CanTransition(StatusCompleted))

	assert.True(t, StatusDispatching.CanTransition(StatusCompleted))
	assert.True(t, StatusDispatching.CanTransition(StatusPartiallyFailed))
	assert.True(t, StatusDispatching.CanTransition(StatusCancelled))

	assert.True(t, StatusPartiallyFailed.CanTransition(StatusResolved))
	assert.True(t, StatusPartiallyFailed.CanTransition(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransition(StatusPartiallyFailed))
	assert.False(t, StatusCompleted.CanTransition(StatusDispatching))

	// 终态不可迁移
	assert.False(t, StatusResolved.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusResolved))
}

func TestEmergency_HasFailures_RetrySucceeded(t *testing.T) {
	now := time.Now()
	e := &Emergency{Outcomes: []NotificationOutcome{
		{Channel: ChannelSMS, Target: "+1", Attempt: 1, Status: OutcomeFailed, Timestamp: now},
		{Channel: ChannelEmail, Target: "a@b.c", Attempt: 1, Status: OutcomeSent, Timestamp: now},
	}}
	assert.True(t, e.HasFailures())

	e.Outcomes = append(e.Outcomes, NotificationOutcome{Channel: ChannelSMS, Target: "+1", Attempt: 2, Status: OutcomeSent, Timestamp: now})
	assert.False(t, e.HasFailures())

	last, ok := e.LastOutcome("sms:+1")
	assert.True(t, ok)
	assert.Equal(t, 2, last.Attempt)
}

func TestEmergency_Clone(t *testing.T) {
	e := &Emergency{
		ID:       "e-1",
		Location: &Location{Lat: 1, Lng: 2},
		Outcomes: []NotificationOutcome{{Channel: ChannelSMS, Target: "+1", Attempt: 1}},
	}
	c := e.Clone()
	c.Location.Lat = 9
	c.Outcomes[0].Attempt = 5

	assert.Equal(t, 1.0, e.Location.Lat)
	assert.Equal(t, 1, e.Outcomes[0].Attempt)
}

func TestVitalSample_Validate(t *testing.T) {
	s := VitalSample{
		HeartRate:     Float64(math.NaN()),
		Temperature:   Float64(37),
		BloodPressure: &BloodPressure{Systolic: 120, Diastolic: 80},
	}
	errs := s.Validate()
	assert.Len(t, errs, 1)
	assert.Equal(t, "heart_rate", errs[0].Metric)
	assert.True(t, s.InvalidMetrics()["heart_rate"])

	v, ok := s.Value(MetricBloodPressure)
	assert.True(t, ok)
	assert.Equal(t, 120.0, v)

	_, ok = s.Value(MetricSpO2)
	assert.False(t, ok)
}

func TestVector3_Magnitude(t *testing.T) {
	assert.InDelta(t, 5.0, Vector3{X: 3, Y: 4}.Magnitude(), 1e-9)
}

func TestVitalSample_Validate_ExtremeValuesAreValid(t *testing.T) {
	s := VitalSample{
		HeartRate:     Float64(450),
		Temperature:   Float64(5),
		BloodPressure: &BloodPressure{Systolic: 410, Diastolic: 20},
		SpO2:          Float64(-1),
	}
	assert.Empty(t, s.Validate())
	assert.Nil(t, s.InvalidMetrics())
}

func TestVitalSample_Sanitized(t *testing.T) {
	s := VitalSample{
		SubjectID:     "s1",
		HeartRate:     Float64(math.NaN()),
		Temperature:   Float64(40),
		BloodPressure: &BloodPressure{Systolic: math.Inf(1), Diastolic: 80},
		Accelerometer: &Vector3{X: 1, Y: 2, Z: 3},
	}
	c := s.Sanitized()
	assert.Nil(t, c.HeartRate)
	assert.Nil(t, c.BloodPressure)
	assert.Equal(t, 40.0, *c.Temperature)
	assert.Equal(t, 3.0, c.Accelerometer.Z)

	// 原样本不受影响
	assert.True(t, math.IsNaN(*s.HeartRate))

	_, err := json.Marshal(c)
	assert.NoError(t, err)
}

func TestEmergency_Clone_IsolatesNestedData(t *testing.T) {
	e := &Emergency{
		ID: "e1",
		Vitals: VitalSample{
			HeartRate:     Float64(130),
			BloodPressure: &BloodPressure{Systolic: 150, Diastolic: 90},
			Location:      &Location{Lat: 1, Lng: 2},
		},
		Findings: []Finding{{Kind: FindingHeartRate, Values: []float64{130}}},
	}
	c := e.Clone()

	*e.Vitals.HeartRate = 60
	e.Vitals.BloodPressure.Systolic = 100
	e.Vitals.Location.Lat = 9
	e.Findings[0].Values[0] = 0

	assert.Equal(t, 130.0, *c.Vitals.HeartRate)
	assert.Equal(t, 150.0, c.Vitals.BloodPressure.Systolic)
	assert.Equal(t, 1.0, c.Vitals.Location.Lat)
	assert.Equal(t, []float64{130}, c.Findings[0].Values)
}
