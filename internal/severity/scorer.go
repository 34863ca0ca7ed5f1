package severity

import (
	"strings"
	"unicode"

	"rescuenet/internal/models"
)

// 各等级的处置建议，顺序固定
var recommendations = map[models.SeverityTier][]string{
	models.TierCritical: {
		"Immediate emergency response required",
		"Dispatch ambulance with advanced life support",
		"Notify trauma center",
		"Consider helicopter transport if available",
	},
	models.TierHigh: {
		"Priority emergency response",
		"Dispatch ambulance",
		"Notify emergency department",
		"Monitor continuously",
	},
	models.TierMedium: {
		"Standard emergency response",
		"Emergency services notification",
		"Arrange transportation to hospital",
		"Continue monitoring",
	},
	models.TierLow: {
		"Monitor situation",
		"Contact healthcare provider",
		"Consider urgent care visit",
		"Keep emergency contacts informed",
	},
}

// CardiacKeywords 病史中视为心脏相关的关键词
// "heart" 覆盖 heart murmur、heart valve replacement 等任意提及
var CardiacKeywords = []string{
	"heart",
	"cardiac",
	"arrhythmia",
	"coronary",
	"myocardial",
	"angina",
	"pacemaker",
}

// nonCardiac 含心脏关键词但与心脏无关的词
var nonCardiac = []string{"heartburn"}

var negations = map[string]bool{
	"no":      true,
	"not":     true,
	"without": true,
	"denies":  true,
	"denied":  true,
	"never":   true,
}

// Score 纯函数评分：相同输入始终得到相同结果
// 格式非法的指标不计分；profile 为 nil 时只按体征计分
func Score(vitals models.VitalSample, profile *models.SubjectProfile) models.SeverityAssessment {
	invalid := vitals.InvalidMetrics()
	score := 0

	if vitals.HeartRate != nil && !invalid[string(models.MetricHeartRate)] {
		score += band(*vitals.HeartRate, 50, 120, 60, 100)
	}
	if vitals.Temperature != nil && !invalid[string(models.MetricTemperature)] {
		score += band(*vitals.Temperature, 35, 39, 36, 38)
	}
	if vitals.BloodPressure != nil && !invalid["blood_pressure_systolic"] {
		score += band(vitals.BloodPressure.Systolic, 70, 180, 90, 140)
	}

	if profile != nil {
		if profile.Age > 65 {
			score++
		}
		if profile.Age > 80 {
			score += 2
		}
		if HasCardiacHistory(profile.MedicalHistory) {
			score += 2
		}
	}

	tier := Tier(score)
	return models.SeverityAssessment{
		Score:           score,
		Tier:            tier,
		Recommendations: Recommendations(tier),
	}
}

// band 超出严重范围 +3，否则超出警戒范围 +1
func band(v, severeLow, severeHigh, warnLow, warnHigh float64) int {
	switch {
	case v > severeHigh || v < severeLow:
		return 3
	case v > warnHigh || v < warnLow:
		return 1
	default:
		return 0
	}
}

// Tier 分数映射到等级
func Tier(score int) models.SeverityTier {
	switch {
	case score >= 7:
		return models.TierCritical
	case score >= 4:
		return models.TierHigh
	case score >= 2:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

// Recommendations 返回等级对应建议的副本
func Recommendations(tier models.SeverityTier) []string {
	return append([]string(nil), recommendations[tier]...)
}

// HasCardiacHistory 病史中是否有未被否定的心脏关键词（不区分大小写）
// 同一分句内关键词前出现 no / not / without / denies / negative for 视为否定
func HasCardiacHistory(history string) bool {
	if history == "" {
		return false
	}
	for _, clause := range splitClauses(strings.ToLower(history)) {
		for _, kw := range CardiacKeywords {
			if mentions(clause, kw) {
				return true
			}
		}
	}
	return false
}

// mentions 分句中是否存在未被否定的关键词出现
func mentions(clause, kw string) bool {
	for start := 0; ; {
		idx := strings.Index(clause[start:], kw)
		if idx < 0 {
			return false
		}
		idx += start
		if !excluded(clause[idx:]) && !negated(clause[:idx]) {
			return true
		}
		start = idx + len(kw)
	}
}

func excluded(s string) bool {
	for _, w := range nonCardiac {
		if strings.HasPrefix(s, w) {
			return true
		}
	}
	return false
}

func splitClauses(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case '.', ',', ';', ':', '\n', '(', ')':
			return true
		}
		return false
	})
}

func negated(prefix string) bool {
	if strings.Contains(prefix, "negative for") {
		return true
	}
	words := strings.FieldsFunc(prefix, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if negations[w] {
			return true
		}
	}
	return false
}
