package detector

import (
	"fmt"

	"rescuenet/internal/models"
)

// Bounds 正常范围 [Min, Max]，边界值本身不算异常
type Bounds struct {
	Min float64
	Max float64
}

// Violated v < Min 或 v > Max
func (b Bounds) Violated(v float64) bool {
	return v < b.Min || v > b.Max
}

// Rules 阈值规则表
type Rules struct {
	HeartRate     Bounds
	Temperature   Bounds
	Systolic      Bounds
	FallMagnitude float64

	// BaselinePercent > 0 且档案有基线时，心率/体温范围改为 baseline*(1±pct/100)
	BaselinePercent float64
}

// DefaultRules 默认固定阈值
func DefaultRules() Rules {
	return Rules{
		HeartRate:     Bounds{Min: 50, Max: 120},
		Temperature:   Bounds{Min: 35.0, Max: 38.5},
		Systolic:      Bounds{Min: 70, Max: 180},
		FallMagnitude: 15,
	}
}

// ThresholdDetector 单样本阈值检测（无状态，可并发调用）
type ThresholdDetector struct {
	rules Rules
}

// NewThresholdDetector 创建阈值检测器
func NewThresholdDetector(rules Rules) *ThresholdDetector {
	return &ThresholdDetector{rules: rules}
}

// Rules 返回当前规则表
func (d *ThresholdDetector) Rules() Rules {
	return d.rules
}

// BoundsFor 计算某个被监护人的心率、体温范围
func (d *ThresholdDetector) BoundsFor(profile *models.SubjectProfile) (heartRate, temperature Bounds) {
	heartRate, temperature = d.rules.HeartRate, d.rules.Temperature
	pct := d.rules.BaselinePercent
	if pct <= 0 || profile == nil {
		return heartRate, temperature
	}
	if profile.BaselineHeartRate > 0 {
		heartRate = relativeBounds(profile.BaselineHeartRate, pct)
	}
	if profile.BaselineTemperature > 0 {
		temperature = relativeBounds(profile.BaselineTemperature, pct)
	}
	return heartRate, temperature
}

func relativeBounds(baseline, pct float64) Bounds {
	delta := baseline * pct / 100
	return Bounds{Min: baseline - delta, Max: baseline + delta}
}

// Evaluate 逐项检查样本，返回所有异常（各指标相互独立，不短路）
// profile 可为 nil，此时使用固定阈值；格式非法的指标被跳过
func (d *ThresholdDetector) Evaluate(sample models.VitalSample, profile *models.SubjectProfile) []models.Finding {
	invalid := sample.InvalidMetrics()
	hrBounds, tempBounds := d.BoundsFor(profile)

	var findings []models.Finding

	if sample.HeartRate != nil && !invalid[string(models.MetricHeartRate)] {
		hr := *sample.HeartRate
		if hrBounds.Violated(hr) {
			findings = append(findings, models.Finding{
				Kind:        models.FindingHeartRate,
				Metric:      models.MetricHeartRate,
				Values:      []float64{hr},
				Description: fmt.Sprintf("Abnormal heart rate: %s BPM", models.FormatValue(hr)),
			})
		}
	}

	if sample.Temperature != nil && !invalid[string(models.MetricTemperature)] {
		temp := *sample.Temperature
		if tempBounds.Violated(temp) {
			findings = append(findings, models.Finding{
				Kind:        models.FindingTemperature,
				Metric:      models.MetricTemperature,
				Values:      []float64{temp},
				Description: fmt.Sprintf("Abnormal temperature: %s°C", models.FormatValue(temp)),
			})
		}
	}

	if bp := sample.BloodPressure; bp != nil && !invalid["blood_pressure_systolic"] && !invalid["blood_pressure_diastolic"] {
		if d.rules.Systolic.Violated(bp.Systolic) {
			findings = append(findings, models.Finding{
				Kind:        models.FindingBloodPressure,
				Metric:      models.MetricBloodPressure,
				Values:      []float64{bp.Systolic, bp.Diastolic},
				Description: fmt.Sprintf("Abnormal blood pressure: %s/%s mmHg", models.FormatValue(bp.Systolic), models.FormatValue(bp.Diastolic)),
			})
		}
	}

	if acc := sample.Accelerometer; acc != nil && !invalid["accelerometer"] {
		magnitude := acc.Magnitude()
		if magnitude > d.rules.FallMagnitude {
			findings = append(findings, models.Finding{
				Kind:        models.FindingFall,
				Values:      []float64{magnitude},
				Description: fmt.Sprintf("Potential fall detected (impact %.1f m/s²)", magnitude),
			})
		}
	}

	return findings
}
