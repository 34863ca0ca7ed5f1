package detector

import (
	"fmt"
	"math"
	"sort"

	"rescuenet/internal/models"
)

// DefaultOutlierMinSamples 少于 6 个值不做离群检测
const DefaultOutlierMinSamples = 6

// OutlierDetector 基于四分位距（IQR）的离群检测
type OutlierDetector struct {
	minSamples int
}

// NewOutlierDetector minSamples <= 0 时使用默认值
func NewOutlierDetector(minSamples int) *OutlierDetector {
	if minSamples <= 0 {
		minSamples = DefaultOutlierMinSamples
	}
	return &OutlierDetector{minSamples: minSamples}
}

// Bounds 返回 [Q1-1.5·IQR, Q3+1.5·IQR]，样本不足时 ok=false
// Q1/Q3 取排序后下标 floor(n*0.25) / floor(n*0.75)
func (d *OutlierDetector) Bounds(values []float64) (lower, upper float64, ok bool) {
	n := len(values)
	if n < d.minSamples {
		return 0, 0, false
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := sorted[int(math.Floor(float64(n)*0.25))]
	q3 := sorted[int(math.Floor(float64(n)*0.75))]
	iqr := q3 - q1

	return q1 - 1.5*iqr, q3 + 1.5*iqr, true
}

// Outliers 返回落在边界之外的值（保持输入顺序），边界值不算离群
func (d *OutlierDetector) Outliers(values []float64) []float64 {
	lower, upper, ok := d.Bounds(values)
	if !ok {
		return nil
	}

	var outliers []float64
	for _, v := range values {
		if v < lower || v > upper {
			outliers = append(outliers, v)
		}
	}
	return outliers
}

// Detect 对某指标窗口做离群检测，最多返回一条 statistical_outlier
func (d *OutlierDetector) Detect(metric models.Metric, values []float64) []models.Finding {
	outliers := d.Outliers(values)
	if len(outliers) == 0 {
		return nil
	}
	return []models.Finding{{
		Kind:        models.FindingStatisticalOutlier,
		Metric:      metric,
		Values:      outliers,
		Description: fmt.Sprintf("%d unusual %s readings detected", len(outliers), metricLabel(metric)),
	}}
}

func metricLabel(metric models.Metric) string {
	switch metric {
	case models.MetricHeartRate:
		return "heart rate"
	case models.MetricBloodPressure:
		return "blood pressure"
	case models.MetricSpO2:
		return "SpO2"
	default:
		return string(metric)
	}
}
