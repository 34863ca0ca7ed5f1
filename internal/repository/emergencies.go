package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rescuenet/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// pq 外键约束错误码；JSONB 参数以 string 传入，避免 []byte 按 bytea 编码
const foreignKeyViolation = "23503"

// EmergencyRepository 紧急事件与通知结果
type EmergencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmergencyRepository 创建紧急事件仓库
func NewEmergencyRepository(db *sql.DB, logger *zap.Logger) *EmergencyRepository {
	return &EmergencyRepository{
		db:     db,
		logger: logger,
	}
}

const emergencyColumns = `id, subject_id, reason, findings, vitals, lat, lng, assessment, status,
			responders, created_at, resolved_at`

// Create id 冲突时返回 models.ErrDuplicateEscalation
func (r *EmergencyRepository) Create(ctx context.Context, e *models.Emergency) error {
	findings, err := json.Marshal(nonNilFindings(e.Findings))
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}
	vitals, err := json.Marshal(e.Vitals)
	if err != nil {
		return fmt.Errorf("failed to marshal vitals: %w", err)
	}
	responders, err := json.Marshal(nonNilResponders(e.Responders))
	if err != nil {
		return fmt.Errorf("failed to marshal responders: %w", err)
	}
	var assessment sql.NullString
	if e.Assessment != nil {
		data, err := json.Marshal(e.Assessment)
		if err != nil {
			return fmt.Errorf("failed to marshal assessment: %w", err)
		}
		assessment = sql.NullString{String: string(data), Valid: true}
	}
	var lat, lng *float64
	if e.Location != nil {
		lat, lng = &e.Location.Lat, &e.Location.Lng
	}

	query := `
		INSERT INTO emergencies (` + emergencyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.SubjectID,
		e.Reason,
		string(findings),
		string(vitals),
		lat,
		lng,
		assessment,
		string(e.Status),
		string(responders),
		e.CreatedAt,
		e.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert emergency: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrDuplicateEscalation
	}
	return nil
}

// Get 读取事件及其通知结果
func (r *EmergencyRepository) Get(ctx context.Context, id string) (*models.Emergency, error) {
	query := `
		SELECT ` + emergencyColumns + `
		FROM emergencies
		WHERE id = $1
	`
	e, err := scanEmergency(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrEmergencyNotFound
		}
		return nil, fmt.Errorf("failed to get emergency: %w", err)
	}

	outcomes, err := r.getOutcomes(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	e.Outcomes = outcomes[id]
	return e, nil
}

// UpdateStatus resolvedAt 为 nil 时保留原值
func (r *EmergencyRepository) UpdateStatus(ctx context.Context, id string, status models.EmergencyStatus, resolvedAt *time.Time) error {
	query := `
		UPDATE emergencies
		SET status = $2, resolved_at = COALESCE($3, resolved_at)
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, string(status), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update emergency status: %w", err)
	}
	return expectRow(res)
}

// AppendOutcome 唯一键 (emergency_id, channel_key, attempt)
func (r *EmergencyRepository) AppendOutcome(ctx context.Context, id string, o models.NotificationOutcome) error {
	query := `
		INSERT INTO notification_outcomes
			(emergency_id, channel, target, channel_key, attempt, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (emergency_id, channel_key, attempt) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		id,
		string(o.Channel),
		o.Target,
		o.Key(),
		o.Attempt,
		string(o.Status),
		nullString(o.Error),
		o.Timestamp,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return models.ErrEmergencyNotFound
		}
		return fmt.Errorf("failed to insert notification outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrDuplicateOutcome
	}
	return nil
}

// SetResponders 覆盖救援方列表
func (r *EmergencyRepository) SetResponders(ctx context.Context, id string, responders []models.Responder) error {
	data, err := json.Marshal(nonNilResponders(responders))
	if err != nil {
		return fmt.Errorf("failed to marshal responders: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE emergencies SET responders = $2 WHERE id = $1`, id, string(data))
	if err != nil {
		return fmt.Errorf("failed to update responders: %w", err)
	}
	return expectRow(res)
}

// ListBySubject 按创建时间倒序
func (r *EmergencyRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*models.Emergency, error) {
	query := `
		SELECT ` + emergencyColumns + `
		FROM emergencies
		WHERE subject_id = $1
		ORDER BY created_at DESC, id`
	args := []interface{}{subjectID}
	if limit > 0 {
		query += "\n\t\tLIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergencies: %w", err)
	}
	defer rows.Close()

	var list []*models.Emergency
	var ids []string
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emergency: %w", err)
		}
		list = append(list, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergencies: %w", err)
	}
	if len(ids) == 0 {
		return list, nil
	}

	outcomes, err := r.getOutcomes(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		e.Outcomes = outcomes[e.ID]
	}
	return list, nil
}

// CountBySubject 事件总数
func (r *EmergencyRepository) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emergencies WHERE subject_id = $1`, subjectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count emergencies: %w", err)
	}
	return n, nil
}

func (r *EmergencyRepository) getOutcomes(ctx context.Context, ids []string) (map[string][]models.NotificationOutcome, error) {
	query := `
		SELECT emergency_id, channel, target, attempt, status, error, sent_at
		FROM notification_outcomes
		WHERE emergency_id = ANY($1)
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query notification outcomes: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]models.NotificationOutcome, len(ids))
	for _, id := range ids {
		result[id] = []models.NotificationOutcome{}
	}
	for rows.Next() {
		var id, channel, status string
		var errMsg sql.NullString
		var o models.NotificationOutcome
		if err := rows.Scan(&id, &channel, &o.Target, &o.Attempt, &status, &errMsg, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan notification outcome: %w", err)
		}
		o.Channel = models.ChannelType(channel)
		o.Status = models.OutcomeStatus(status)
		o.Error = errMsg.String
		result[id] = append(result[id], o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification outcomes: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmergency(row rowScanner) (*models.Emergency, error) {
	var e models.Emergency
	var status string
	var findings, vitals, assessment, responders []byte
	var lat, lng sql.NullFloat64
	var resolvedAt sql.NullTime

	if err := row.Scan(
		&e.ID,
		&e.SubjectID,
		&e.Reason,
		&findings,
		&vitals,
		&lat,
		&lng,
		&assessment,
		&status,
		&responders,
		&e.CreatedAt,
		&resolvedAt,
	); err != nil {
		return nil, err
	}

	e.Status = models.EmergencyStatus(status)
	if lat.Valid && lng.Valid {
		e.Location = &models.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	if err := unmarshalJSON(findings, &e.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}
	if err := unmarshalJSON(vitals, &e.Vitals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vitals: %w", err)
	}
	if err := unmarshalJSON(responders, &e.Responders); err != nil {
		return nil, fmt.Errorf("failed to unmarshal responders: %w", err)
	}
	if len(assessment) > 0 {
		e.Assessment = &models.SeverityAssessment{}
		if err := json.Unmarshal(assessment, e.Assessment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assessment: %w", err)
		}
	}
	if e.Findings == nil {
		e.Findings = []models.Finding{}
	}
	if e.Responders == nil {
		e.Responders = []models.Responder{}
	}
	return &e, nil
}

// 辅助函数
func unmarshalJSON(data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrEmergencyNotFound
	}
	return nil
}

func nonNilFindings(f []models.Finding) []models.Finding {
	if f == nil {
		return []models.Finding{}
	}
	return f
}

func nonNilResponders(r []models.Responder) []models.Responder {
	if r == nil {
		return []models.Responder{}
	}
	return r
}
