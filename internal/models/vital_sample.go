package models

import (
	"fmt"
	"math"
	"time"
)

// Metric 可分析的生命体征指标
type Metric string

const (
	MetricHeartRate     Metric = "heart_rate"
	MetricTemperature   Metric = "temperature"
	MetricBloodPressure Metric = "blood_pressure" // 按收缩压分析
	MetricSpO2          Metric = "spo2"
)

// Vector3 三轴加速度（m/s²）
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude 合加速度 sqrt(x²+y²+z²)
func (v Vector3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Location 经纬度
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapsURL Google Maps 链接
func (l Location) MapsURL() string {
	return fmt.Sprintf("https://maps.google.com/maps?q=%s,%s", formatCoord(l.Lat), formatCoord(l.Lng))
}

func formatCoord(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// BloodPressure 血压（mmHg），收缩压/舒张压
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// VitalSample 一次设备上报的生命体征读数
// 可选字段为 nil 表示未测量，不等于 0
type VitalSample struct {
	SubjectID     string         `json:"subject_id"`
	DeviceID      string         `json:"device_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	HeartRate     *float64       `json:"heart_rate,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	BloodPressure *BloodPressure `json:"blood_pressure,omitempty"`
	SpO2          *float64       `json:"spo2,omitempty"`
	Accelerometer *Vector3       `json:"accelerometer,omitempty"`
	Location      *Location      `json:"location,omitempty"`
}

// Value 取指定指标的值，未测量返回 false
func (s VitalSample) Value(metric Metric) (float64, bool) {
	switch metric {
	case MetricHeartRate:
		if s.HeartRate != nil {
			return *s.HeartRate, true
		}
	case MetricTemperature:
		if s.Temperature != nil {
			return *s.Temperature, true
		}
	case MetricBloodPressure:
		if s.BloodPressure != nil {
			return s.BloodPressure.Systolic, true
		}
	case MetricSpO2:
		if s.SpO2 != nil {
			return *s.SpO2, true
		}
	}
	return 0, false
}

// Validate 检查各指标是否为有限数值，每个非法指标返回一个 InputError
// 数值大小不在此判断，极端读数交给检测器产生 finding
// 返回 nil 表示全部合法
func (s VitalSample) Validate() []InputError {
	var errs []InputError

	check := func(metric string, values ...float64) {
		for _, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, InputError{Metric: metric, Reason: "not a finite number"})
				return
			}
		}
	}

	if s.HeartRate != nil {
		check(string(MetricHeartRate), *s.HeartRate)
	}
	if s.Temperature != nil {
		check(string(MetricTemperature), *s.Temperature)
	}
	if s.BloodPressure != nil {
		check("blood_pressure_systolic", s.BloodPressure.Systolic)
		check("blood_pressure_diastolic", s.BloodPressure.Diastolic)
	}
	if s.SpO2 != nil {
		check(string(MetricSpO2), *s.SpO2)
	}
	if s.Accelerometer != nil {
		check("accelerometer", s.Accelerometer.X, s.Accelerometer.Y, s.Accelerometer.Z)
	}
	if s.Location != nil {
		check("location", s.Location.Lat, s.Location.Lng)
	}

	return errs
}

// InvalidMetrics 返回非法指标名集合，供检测器跳过
func (s VitalSample) InvalidMetrics() map[string]bool {
	errs := s.Validate()
	if len(errs) == 0 {
		return nil
	}
	invalid := make(map[string]bool, len(errs))
	for _, e := range errs {
		invalid[e.Metric] = true
	}
	return invalid
}

// Clone 深拷贝所有可选指标
func (s VitalSample) Clone() VitalSample {
	c := s
	c.HeartRate = clonePtr(s.HeartRate)
	c.Temperature = clonePtr(s.Temperature)
	c.BloodPressure = clonePtr(s.BloodPressure)
	c.SpO2 = clonePtr(s.SpO2)
	c.Accelerometer = clonePtr(s.Accelerometer)
	c.Location = clonePtr(s.Location)
	return c
}

// Sanitized 返回去掉非法指标的副本，可安全入库、缓存和序列化
func (s VitalSample) Sanitized() VitalSample {
	c := s.Clone()
	invalid := s.InvalidMetrics()
	if len(invalid) == 0 {
		return c
	}
	if invalid[string(MetricHeartRate)] {
		c.HeartRate = nil
	}
	if invalid[string(MetricTemperature)] {
		c.Temperature = nil
	}
	if invalid["blood_pressure_systolic"] || invalid["blood_pressure_diastolic"] {
		c.BloodPressure = nil
	}
	if invalid[string(MetricSpO2)] {
		c.SpO2 = nil
	}
	if invalid["accelerometer"] {
		c.Accelerometer = nil
	}
	if invalid["location"] {
		c.Location = nil
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// WindowQuery 历史窗口查询条件，Limit 为 0 表示不限
type WindowQuery struct {
	Limit int
	Since *time.Time
	Until *time.Time
}

// Values 按顺序提取窗口内某指标的值（跳过未测量）
func Values(window []VitalSample, metric Metric) []float64 {
	values := make([]float64, 0, len(window))
	for _, s := range window {
		if v, ok := s.Value(metric); ok {
			values = append(values, v)
		}
	}
	return values
}

// Float64 返回指针，便于构造样本
func Float64(v float64) *float64 {
	return &v
}
