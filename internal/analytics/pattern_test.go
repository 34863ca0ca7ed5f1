package analytics

import (
	"testing"
	"time"

	"rescuenet/internal/detector"
	"rescuenet/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 是星期一
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func identicalWindow(n int, hr float64) []models.VitalSample {
	window := make([]models.VitalSample, n)
	for i := range window {
		window[i] = models.VitalSample{
			SubjectID: "s-1",
			Timestamp: monday.Add(time.Duration(i) * 3 * time.Hour),
			HeartRate: models.Float64(hr),
		}
	}
	return window
}

func sampleAt(ts time.Time, hr float64) models.VitalSample {
	return models.VitalSample{SubjectID: "s-1", Timestamp: ts, HeartRate: models.Float64(hr)}
}

func newMiner() *PatternMiner {
	return NewPatternMiner(DefaultPatternConfig(), detector.NewOutlierDetector(0))
}

func TestPatternMiner_TooFewSamples(t *testing.T) {
	patterns := newMiner().Mine(identicalWindow(9, 75))
	assert.NotNil(t, patterns)
	assert.Empty(t, patterns)
}

func TestPatternMiner_IdenticalSamples(t *testing.T) {
	assert.Empty(t, newMiner().Mine(identicalWindow(12, 75)))
}

func TestPatternMiner_NormalDailyRhythm(t *testing.T) {
	var window []models.VitalSample
	// 夜间 58-60，白天 78-80
	for _, h := range []int{23, 1, 3, 5} {
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 59))
	}
	for _, h := range []int{9, 11, 13, 15, 17, 19} {
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 79))
	}

	patterns := newMiner().Mine(window)
	require.Len(t, patterns, 1)
	assert.Equal(t, models.PatternDailyRhythm, patterns[0].Type)
	assert.Equal(t, models.SignificanceNormal, patterns[0].Significance)
	assert.Equal(t, "Heart rate shows normal day-night pattern", patterns[0].Description)
	assert.Equal(t, []float64{59, 79}, patterns[0].Values)
}

func TestPatternMiner_ConcerningDailyRhythm(t *testing.T) {
	var window []models.VitalSample
	for _, h := range []int{22, 0, 2, 4, 6} {
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 95))
	}
	for _, h := range []int{8, 10, 12, 14, 16} {
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 80))
	}

	patterns := newMiner().Mine(window)
	require.NotEmpty(t, patterns)
	assert.Equal(t, models.SignificanceConcerning, patterns[0].Significance)
}

func TestPatternMiner_WithinDailyDelta(t *testing.T) {
	var window []models.VitalSample
	for _, h := range []int{23, 1, 3, 5, 6} {
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 70))
	}
	for _, h := range []int{9, 11, 13, 15, 17} {
		// 差值恰好为 10，不触发
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 80))
	}
	assert.Empty(t, newMiner().Mine(window))
}

func TestPatternMiner_WeeklyStress(t *testing.T) {
	var window []models.VitalSample
	// 周一中午心率 95，周二到周六中午 75
	for d := 0; d < 6; d++ {
		hr := 75.0
		if d == 0 {
			hr = 95
		}
		for _, h := range []int{10, 12} {
			window = append(window, sampleAt(monday.AddDate(0, 0, d).Add(time.Duration(h)*time.Hour), hr))
		}
	}

	patterns := newMiner().Mine(window)
	var weekly *models.Pattern
	for i := range patterns {
		if patterns[i].Type == models.PatternWeeklyStress {
			weekly = &patterns[i]
		}
	}
	require.NotNil(t, weekly)
	assert.Equal(t, "Higher stress levels detected on Mondays", weekly.Description)
	assert.Equal(t, models.SignificanceMonitor, weekly.Significance)
	assert.Equal(t, []float64{95, 75}, weekly.Values)
}

func TestPatternMiner_Outliers(t *testing.T) {
	window := identicalWindow(11, 75)
	window[3].HeartRate = models.Float64(160)
	for i := range window {
		window[i].Temperature = models.Float64(36.8)
	}
	window[5].Temperature = models.Float64(40.1)

	patterns := newMiner().Mine(window)

	var types []models.PatternType
	for _, p := range patterns {
		types = append(types, p.Type)
	}
	assert.Contains(t, types, models.PatternHeartRateAnomaly)
	assert.Contains(t, types, models.PatternTemperatureAnomaly)

	last := patterns[len(patterns)-1]
	assert.Equal(t, models.PatternTemperatureAnomaly, last.Type)
	assert.Equal(t, "1 unusual temperature readings detected", last.Description)
	assert.Equal(t, models.SignificanceInvestigate, last.Significance)
	assert.Equal(t, []float64{40.1}, last.Values)
}

func TestPatternMiner_ConfigurableThresholds(t *testing.T) {
	cfg := DefaultPatternConfig()
	cfg.DailyRhythmDelta = 5

	var window []models.VitalSample
	for _, h := range []int{23, 1, 3, 5, 6} {
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 70))
	}
	for _, h := range []int{9, 11, 13, 15, 17} {
		window = append(window, sampleAt(monday.Add(time.Duration(h)*time.Hour), 77))
	}

	patterns := NewPatternMiner(cfg, nil).Mine(window)
	require.Len(t, patterns, 1)
	assert.Equal(t, models.PatternDailyRhythm, patterns[0].Type)
}
