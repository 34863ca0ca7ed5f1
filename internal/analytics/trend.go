package analytics

import (
	"math"

	"rescuenet/internal/models"
)

// slopeThreshold |slope| <= 0.1 视为平稳
const slopeThreshold = 0.1

// TrendOfValues 对按时间排序（旧→新）的数值做最小二乘线性拟合
// x 为下标 0..n-1；n < 2 返回 insufficient_data
func TrendOfValues(metric models.Metric, values []float64) models.TrendReport {
	n := len(values)
	report := models.TrendReport{Metric: metric, Count: n}

	if n < 2 {
		report.Direction = models.TrendInsufficientData
		if n == 1 {
			report.Average = round(values[0], 2)
			report.Latest = values[0]
		}
		return report
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	slope := (fn*sumXY - sumX*sumY) / (fn*sumXX - sumX*sumX)

	switch {
	case slope > slopeThreshold:
		report.Direction = models.TrendIncreasing
	case slope < -slopeThreshold:
		report.Direction = models.TrendDecreasing
	default:
		report.Direction = models.TrendStable
	}

	report.Slope = round(slope, 3)
	report.Average = round(sumY/fn, 2)
	report.Latest = values[n-1]
	return report
}

// Trend 从样本窗口中提取指标后计算趋势，未测量的样本被跳过
func Trend(window []models.VitalSample, metric models.Metric) models.TrendReport {
	return TrendOfValues(metric, models.Values(window, metric))
}

// AnalyzeHealthTrends 心率/体温/血压三项趋势及综合走向
func AnalyzeHealthTrends(window []models.VitalSample) models.HealthTrends {
	trends := models.HealthTrends{
		HeartRate:     Trend(window, models.MetricHeartRate),
		Temperature:   Trend(window, models.MetricTemperature),
		BloodPressure: Trend(window, models.MetricBloodPressure),
	}
	trends.Overall = OverallDirection(trends.HeartRate.Direction, trends.Temperature.Direction, trends.BloodPressure.Direction)
	return trends
}

// OverallDirection 综合走向：
//   - 任一指标上升 → deteriorating
//   - 全部平稳 → stable
//   - 心率下降且体温平稳 → improving
//   - 其余组合（含数据不足）→ stable
func OverallDirection(heartRate, temperature, bloodPressure models.TrendDirection) models.HealthDirection {
	switch {
	case heartRate == models.TrendIncreasing || temperature == models.TrendIncreasing || bloodPressure == models.TrendIncreasing:
		return models.HealthDeteriorating
	case heartRate == models.TrendStable && temperature == models.TrendStable && bloodPressure == models.TrendStable:
		return models.HealthStable
	case heartRate == models.TrendDecreasing && temperature == models.TrendStable:
		return models.HealthImproving
	default:
		return models.HealthStable
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
