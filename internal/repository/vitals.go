package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rescuenet/internal/models"

	"go.uber.org/zap"
)

// VitalsRepository 生命体征历史
type VitalsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVitalsRepository 创建生命体征仓库
func NewVitalsRepository(db *sql.DB, logger *zap.Logger) *VitalsRepository {
	return &VitalsRepository{
		db:     db,
		logger: logger,
	}
}

const vitalColumns = `subject_id, device_id, ts, heart_rate, temperature, systolic, diastolic, spo2,
			accel_x, accel_y, accel_z, lat, lng`

// metricColumn 指标对应的非空过滤列
func metricColumn(metric models.Metric) (string, bool) {
	switch metric {
	case models.MetricHeartRate:
		return "heart_rate", true
	case models.MetricTemperature:
		return "temperature", true
	case models.MetricBloodPressure:
		return "systolic", true
	case models.MetricSpO2:
		return "spo2", true
	}
	return "", false
}

// InsertSample 写入一条样本
func (r *VitalsRepository) InsertSample(ctx context.Context, s models.VitalSample) error {
	if s.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	var systolic, diastolic, ax, ay, az, lat, lng *float64
	if s.BloodPressure != nil {
		systolic, diastolic = &s.BloodPressure.Systolic, &s.BloodPressure.Diastolic
	}
	if s.Accelerometer != nil {
		ax, ay, az = &s.Accelerometer.X, &s.Accelerometer.Y, &s.Accelerometer.Z
	}
	if s.Location != nil {
		lat, lng = &s.Location.Lat, &s.Location.Lng
	}

	query := `
		INSERT INTO vital_samples (` + vitalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SubjectID,
		nullString(s.DeviceID),
		s.Timestamp,
		s.HeartRate,
		s.Temperature,
		systolic,
		diastolic,
		s.SpO2,
		ax, ay, az,
		lat, lng,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vital sample: %w", err)
	}
	return nil
}

// GetWindow 读取最近的样本窗口，按时间从旧到新返回
// metric 非空时只返回测量了该指标的样本
func (r *VitalsRepository) GetWindow(ctx context.Context, subjectID string, metric models.Metric, q models.WindowQuery) ([]models.VitalSample, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	conditions := []string{"subject_id = $1"}
	args := []interface{}{subjectID}

	if col, ok := metricColumn(metric); ok {
		conditions = append(conditions, col+" IS NOT NULL")
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		conditions = append(conditions, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if q.Until != nil {
		args = append(args, *q.Until)
		conditions = append(conditions, fmt.Sprintf("ts <= $%d", len(args)))
	}

	query := `
		SELECT ` + vitalColumns + `
		FROM vital_samples
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY ts DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vital samples: %w", err)
	}
	defer rows.Close()

	var window []models.VitalSample
	for rows.Next() {
		s, err := scanVitalSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vital sample: %w", err)
		}
		window = append(window, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vital samples: %w", err)
	}

	// 倒序查询，翻转为旧→新
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}
	return window, nil
}

func scanVitalSample(rows *sql.Rows) (models.VitalSample, error) {
	var s models.VitalSample
	var deviceID sql.NullString
	var hr, temp, systolic, diastolic, spo2, ax, ay, az, lat, lng sql.NullFloat64

	if err := rows.Scan(
		&s.SubjectID,
		&deviceID,
		&s.Timestamp,
		&hr,
		&temp,
		&systolic,
		&diastolic,
		&spo2,
		&ax, &ay, &az,
		&lat, &lng,
	); err != nil {
		return s, err
	}

	s.DeviceID = deviceID.String
	s.HeartRate = floatPtr(hr)
	s.Temperature = floatPtr(temp)
	s.SpO2 = floatPtr(spo2)
	if systolic.Valid {
		s.BloodPressure = &models.BloodPressure{Systolic: systolic.Float64, Diastolic: diastolic.Float64}
	}
	if ax.Valid && ay.Valid && az.Valid {
		s.Accelerometer = &models.Vector3{X: ax.Float64, Y: ay.Float64, Z: az.Float64}
	}
	if lat.Valid && lng.Valid {
		s.Location = &models.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	return s, nil
}

// 辅助函数
func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
