package repository

import (
	"context"
	"database/sql"
	"fmt"

	"rescuenet/internal/models"

	"go.uber.org/zap"
)

// ProfileRepository 被监护人档案（只读，账户服务负责写入）
type ProfileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProfileRepository 创建档案仓库
func NewProfileRepository(db *sql.DB, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// GetProfile 读取档案及紧急联系人，不存在时返回 models.ErrProfileNotFound
func (r *ProfileRepository) GetProfile(ctx context.Context, subjectID string) (*models.SubjectProfile, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT
			subject_id,
			name,
			phone,
			email,
			age,
			sex,
			blood_group,
			medical_history,
			baseline_heart_rate,
			baseline_temperature,
			device_id
		FROM subject_profiles
		WHERE subject_id = $1
	`

	var p models.SubjectProfile
	var email, bloodGroup, history, deviceID sql.NullString
	var baselineHR, baselineTemp sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, subjectID).Scan(
		&p.SubjectID,
		&p.Name,
		&p.Phone,
		&email,
		&p.Age,
		&p.Sex,
		&bloodGroup,
		&history,
		&baselineHR,
		&baselineTemp,
		&deviceID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: subject_id=%s", models.ErrProfileNotFound, subjectID)
		}
		return nil, fmt.Errorf("failed to get subject profile: %w", err)
	}

	p.Email = email.String
	p.BloodGroup = bloodGroup.String
	p.MedicalHistory = history.String
	p.BaselineHeartRate = baselineHR.Float64
	p.BaselineTemperature = baselineTemp.Float64
	p.DeviceID = deviceID.String

	contacts, err := r.getContacts(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	p.Contacts = contacts
	return &p, nil
}

func (r *ProfileRepository) getContacts(ctx context.Context, subjectID string) ([]models.EmergencyContact, error) {
	query := `
		SELECT name, phone, email, chat_id, channel, is_primary
		FROM emergency_contacts
		WHERE subject_id = $1
		ORDER BY position, id
	`
	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergency contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.EmergencyContact{}
	for rows.Next() {
		var c models.EmergencyContact
		var phone, email, chatID, channel sql.NullString
		if err := rows.Scan(&c.Name, &phone, &email, &chatID, &channel, &c.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan emergency contact: %w", err)
		}
		c.Phone = phone.String
		c.Email = email.String
		c.ChatID = chatID.String
		c.Channel = models.ChannelType(channel.String)
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergency contacts: %w", err)
	}
	return contacts, nil
}
