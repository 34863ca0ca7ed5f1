package analytics

import (
	"time"

	"rescuenet/internal/models"
)

// GenerateInsights 根据档案、趋势和规律生成健康建议
func GenerateInsights(profile *models.SubjectProfile, trends *models.HealthTrends, patterns []models.Pattern) []models.Insight {
	insights := []models.Insight{}

	if profile != nil {
		if profile.Age > 60 {
			insights = append(insights, models.Insight{
				Category: "age_specific",
				Message:  "As a senior, regular monitoring of blood pressure and heart rate is especially important.",
				Action:   "Schedule regular check-ups with your healthcare provider.",
			})
		}
		if profile.Sex == "F" && profile.Age >= 20 && profile.Age <= 50 {
			insights = append(insights, models.Insight{
				Category: "reproductive_health",
				Message:  "Tracking your menstrual cycle can provide additional health insights.",
				Action:   "Consider logging your menstrual cycle dates for comprehensive health monitoring.",
			})
		}
	}

	if trends != nil && trends.HeartRate.Direction == models.TrendIncreasing {
		insights = append(insights, models.Insight{
			Category: "heart_health",
			Message:  "Your heart rate has been trending upward. This could indicate increased stress or physical activity.",
			Action:   "Monitor stress levels and consider consulting a healthcare provider if the trend continues.",
		})
	}

	for _, p := range patterns {
		if p.Significance == models.SignificanceConcerning {
			insights = append(insights, models.Insight{
				Category: "pattern_alert",
				Message:  p.Description,
				Action:   "Consider discussing this pattern with your healthcare provider.",
			})
		}
	}

	return insights
}

// ComputeWeeklyStats 统计 asOf 之前 7 天内的样本
func ComputeWeeklyStats(window []models.VitalSample, asOf time.Time, loc *time.Location) models.WeeklyStats {
	if loc == nil {
		loc = time.UTC
	}
	since := asOf.AddDate(0, 0, -7)

	var hr, temp, bp meanAcc
	var maxHR, minHR float64
	days := make(map[string]struct{})
	stats := models.WeeklyStats{}

	for _, s := range window {
		if s.Timestamp.Before(since) || s.Timestamp.After(asOf) {
			continue
		}
		stats.TotalReadings++
		days[s.Timestamp.In(loc).Format("2006-01-02")] = struct{}{}

		if s.HeartRate != nil {
			v := *s.HeartRate
			if hr.n == 0 || v > maxHR {
				maxHR = v
			}
			if hr.n == 0 || v < minHR {
				minHR = v
			}
			hr.add(v)
		}
		if s.Temperature != nil {
			temp.add(*s.Temperature)
		}
		if s.BloodPressure != nil {
			bp.add(s.BloodPressure.Systolic)
		}
	}

	stats.ActiveDays = len(days)
	if hr.n > 0 {
		stats.AvgHeartRate = models.Float64(round(hr.mean(), 2))
		stats.MaxHeartRate = models.Float64(maxHR)
		stats.MinHeartRate = models.Float64(minHR)
	}
	if temp.n > 0 {
		stats.AvgTemperature = models.Float64(round(temp.mean(), 2))
	}
	if bp.n > 0 {
		stats.AvgBloodPressure = models.Float64(round(bp.mean(), 2))
	}
	return stats
}
