package models

// FindingKind 异常类型
type FindingKind string

const (
	FindingHeartRate          FindingKind = "heart_rate"
	FindingTemperature        FindingKind = "temperature"
	FindingBloodPressure      FindingKind = "blood_pressure"
	FindingFall               FindingKind = "fall"
	FindingStatisticalOutlier FindingKind = "statistical_outlier"
)

// Finding 检测到的一条异常事实（尚未决定是否升级）
type Finding struct {
	Kind        FindingKind `json:"kind"`
	Metric      Metric      `json:"metric,omitempty"`
	Values      []float64   `json:"values"`
	Description string      `json:"description"`
}

// TrendDirection 趋势方向
type TrendDirection string

const (
	TrendIncreasing       TrendDirection = "increasing"
	TrendDecreasing       TrendDirection = "decreasing"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

// TrendReport 单指标趋势
type TrendReport struct {
	Metric    Metric         `json:"metric"`
	Direction TrendDirection `json:"direction"`
	Slope     float64        `json:"slope"`
	Average   float64        `json:"average"`
	Latest    float64        `json:"latest"`
	Count     int            `json:"count"`
}

// HealthDirection 综合健康走向
type HealthDirection string

const (
	HealthDeteriorating HealthDirection = "deteriorating"
	HealthStable        HealthDirection = "stable"
	HealthImproving     HealthDirection = "improving"
)

// HealthTrends 三项指标趋势 + 综合走向
type HealthTrends struct {
	HeartRate     TrendReport     `json:"heart_rate"`
	Temperature   TrendReport     `json:"temperature"`
	BloodPressure TrendReport     `json:"blood_pressure"`
	Overall       HealthDirection `json:"overall"`
}

// PatternType 规律类型
type PatternType string

const (
	PatternDailyRhythm        PatternType = "daily_rhythm"
	PatternWeeklyStress       PatternType = "weekly_stress"
	PatternHeartRateAnomaly   PatternType = "heart_rate_anomaly"
	PatternTemperatureAnomaly PatternType = "temperature_anomaly"
)

// Significance 规律的重要程度
type Significance string

const (
	SignificanceNormal      Significance = "normal"
	SignificanceConcerning  Significance = "concerning"
	SignificanceMonitor     Significance = "monitor"
	SignificanceInvestigate Significance = "investigate"
)

// Pattern 历史数据中挖掘出的规律
type Pattern struct {
	Type         PatternType  `json:"type"`
	Description  string       `json:"description"`
	Significance Significance `json:"significance"`
	Values       []float64    `json:"values,omitempty"`
}

// Insight 面向用户的健康建议
type Insight struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// WeeklyStats 近 7 天统计
type WeeklyStats struct {
	AvgHeartRate     *float64 `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *float64 `json:"max_heart_rate,omitempty"`
	MinHeartRate     *float64 `json:"min_heart_rate,omitempty"`
	AvgTemperature   *float64 `json:"avg_temperature,omitempty"`
	AvgBloodPressure *float64 `json:"avg_blood_pressure,omitempty"`
	TotalReadings    int      `json:"total_readings"`
	ActiveDays       int      `json:"active_days"`
}

// InsightReport 仪表盘使用的分析报告（每次请求重新计算）
type InsightReport struct {
	SubjectID      string       `json:"subject_id"`
	Trends         HealthTrends `json:"trends"`
	Patterns       []Pattern    `json:"patterns"`
	Insights       []Insight    `json:"insights"`
	WeeklyStats    WeeklyStats  `json:"weekly_stats"`
	EmergencyCount int          `json:"emergency_count"`
	Latest         *VitalSample `json:"latest,omitempty"`
}

// SeverityTier 严重等级
type SeverityTier string

const (
	TierLow      SeverityTier = "LOW"
	TierMedium   SeverityTier = "MEDIUM"
	TierHigh     SeverityTier = "HIGH"
	TierCritical SeverityTier = "CRITICAL"
)

// SeverityAssessment 严重度评分结果
type SeverityAssessment struct {
	Score           int          `json:"score"`
	Tier            SeverityTier `json:"tier"`
	Recommendations []string     `json:"recommendations"`
}
