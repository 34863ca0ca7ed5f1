package analytics

import (
	"fmt"
	"math"
	"time"

	"rescuenet/internal/detector"
	"rescuenet/internal/models"
)

// PatternConfig 规律挖掘阈值
type PatternConfig struct {
	MinSamples        int
	DailyRhythmDelta  float64
	WeeklyStressDelta float64
	Location          *time.Location // 计算小时/星期所用时区
}

// DefaultPatternConfig 默认阈值：10 个样本、昼夜差 10、周内差 15
func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		MinSamples:        10,
		DailyRhythmDelta:  10,
		WeeklyStressDelta: 15,
		Location:          time.UTC,
	}
}

// PatternMiner 按小时/星期分组挖掘心率规律，并统计离群值
type PatternMiner struct {
	cfg      PatternConfig
	outliers *detector.OutlierDetector
}

// NewPatternMiner 创建规律挖掘器
func NewPatternMiner(cfg PatternConfig, outliers *detector.OutlierDetector) *PatternMiner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if outliers == nil {
		outliers = detector.NewOutlierDetector(0)
	}
	return &PatternMiner{cfg: cfg, outliers: outliers}
}

// Mine 返回 daily_rhythm、weekly_stress、离群统计（顺序固定）
// 样本数少于 MinSamples 时返回空列表
func (m *PatternMiner) Mine(window []models.VitalSample) []models.Pattern {
	if len(window) < m.cfg.MinSamples {
		return []models.Pattern{}
	}

	patterns := []models.Pattern{}
	if p, ok := m.dailyRhythm(window); ok {
		patterns = append(patterns, p)
	}
	if p, ok := m.weeklyStress(window); ok {
		patterns = append(patterns, p)
	}
	patterns = append(patterns, m.anomalies(window)...)
	return patterns
}

func isNightHour(hour int) bool {
	return hour >= 22 || hour <= 6
}

// dailyRhythm 比较夜间与白天的小时均值
func (m *PatternMiner) dailyRhythm(window []models.VitalSample) (models.Pattern, bool) {
	var hourly [24]meanAcc
	for _, s := range window {
		if s.HeartRate == nil {
			continue
		}
		hourly[s.Timestamp.In(m.cfg.Location).Hour()].add(*s.HeartRate)
	}

	var night, day meanAcc
	for hour, acc := range hourly {
		if acc.n == 0 {
			continue
		}
		if isNightHour(hour) {
			night.add(acc.mean())
		} else {
			day.add(acc.mean())
		}
	}
	if night.n == 0 || day.n == 0 {
		return models.Pattern{}, false
	}

	nightAvg, dayAvg := night.mean(), day.mean()
	if math.Abs(nightAvg-dayAvg) <= m.cfg.DailyRhythmDelta {
		return models.Pattern{}, false
	}

	p := models.Pattern{
		Type:   models.PatternDailyRhythm,
		Values: []float64{round(nightAvg, 2), round(dayAvg, 2)},
	}
	if nightAvg < dayAvg {
		p.Description = "Heart rate shows normal day-night pattern"
		p.Significance = models.SignificanceNormal
	} else {
		p.Description = "Heart rate shows abnormal day-night pattern"
		p.Significance = models.SignificanceConcerning
	}
	return p, true
}

// weeklyStress 找出日均心率最高与最低的星期
func (m *PatternMiner) weeklyStress(window []models.VitalSample) (models.Pattern, bool) {
	var daily [7]meanAcc
	for _, s := range window {
		if s.HeartRate == nil {
			continue
		}
		daily[s.Timestamp.In(m.cfg.Location).Weekday()].add(*s.HeartRate)
	}

	maxDay, minDay := -1, -1
	for day, acc := range daily {
		if acc.n == 0 {
			continue
		}
		if maxDay < 0 || acc.mean() > daily[maxDay].mean() {
			maxDay = day
		}
		if minDay < 0 || acc.mean() < daily[minDay].mean() {
			minDay = day
		}
	}
	if maxDay < 0 {
		return models.Pattern{}, false
	}

	maxAvg, minAvg := daily[maxDay].mean(), daily[minDay].mean()
	if maxAvg-minAvg <= m.cfg.WeeklyStressDelta {
		return models.Pattern{}, false
	}

	return models.Pattern{
		Type:         models.PatternWeeklyStress,
		Description:  fmt.Sprintf("Higher stress levels detected on %ss", time.Weekday(maxDay)),
		Significance: models.SignificanceMonitor,
		Values:       []float64{round(maxAvg, 2), round(minAvg, 2)},
	}, true
}

// anomalies 复用 IQR 离群检测，心率与体温分别统计
func (m *PatternMiner) anomalies(window []models.VitalSample) []models.Pattern {
	var patterns []models.Pattern

	checks := []struct {
		metric models.Metric
		typ    models.PatternType
		label  string
	}{
		{models.MetricHeartRate, models.PatternHeartRateAnomaly, "heart rate"},
		{models.MetricTemperature, models.PatternTemperatureAnomaly, "temperature"},
	}

	for _, check := range checks {
		outliers := m.outliers.Outliers(models.Values(window, check.metric))
		if len(outliers) == 0 {
			continue
		}
		patterns = append(patterns, models.Pattern{
			Type:         check.typ,
			Description:  fmt.Sprintf("%d unusual %s readings detected", len(outliers), check.label),
			Significance: models.SignificanceInvestigate,
			Values:       outliers,
		})
	}
	return patterns
}

type meanAcc struct {
	sum float64
	n   int
}

func (a *meanAcc) add(v float64) {
	a.sum += v
	a.n++
}

func (a meanAcc) mean() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}
