package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"rescuenet/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockEmergencyDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *EmergencyRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewEmergencyRepository(db, zap.NewNop())
	return db, mock, repo
}

var emergencyRowColumns = []string{
	"id", "subject_id", "reason", "findings", "vitals", "lat", "lng", "assessment", "status",
	"responders", "created_at", "resolved_at",
}

var outcomeRowColumns = []string{"emergency_id", "channel", "target", "attempt", "status", "error", "sent_at"}

func testEmergency(now time.Time) *models.Emergency {
	return &models.Emergency{
		ID:        "e-1",
		SubjectID: "subject-1",
		Reason:    "Health anomaly detected: heart_rate",
		Findings: []models.Finding{
			{Kind: models.FindingHeartRate, Metric: models.MetricHeartRate, Values: []float64{150}, Description: "Heart rate 150 outside [50, 120]"},
		},
		Vitals:     models.VitalSample{SubjectID: "subject-1", Timestamp: now, HeartRate: models.Float64(150)},
		Location:   &models.Location{Lat: 12.9, Lng: 77.5},
		Assessment: &models.SeverityAssessment{Score: 4, Tier: models.TierHigh, Recommendations: []string{"Contact doctor"}},
		Status:     models.StatusCreated,
		CreatedAt:  now,
	}
}

func TestCreateEmergency_Success(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	now := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO emergencies .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("e-1", "subject-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			12.9, 77.5, sqlmock.AnyArg(), "created", "[]", now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), testEmergency(now)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEmergency_Duplicate(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO emergencies`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), testEmergency(time.Now()))
	assert.True(t, errors.Is(err, models.ErrDuplicateEscalation))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmergency_WithOutcomes(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	now := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	rows := sqlmock.NewRows(emergencyRowColumns).AddRow(
		"e-1", "subject-1", "Emergency alert",
		`[{"kind":"fall","values":[25.3],"description":"Fall detected"}]`,
		`{"subject_id":"subject-1","timestamp":"2026-03-02T08:15:00Z"}`,
		12.9, 77.5,
		`{"score":2,"tier":"MEDIUM","recommendations":["Monitor closely"]}`,
		"partially_failed", `[]`, now, nil,
	)
	outcomes := sqlmock.NewRows(outcomeRowColumns).
		AddRow("e-1", "sms", "+915555", 1, "failed", "timeout", now).
		AddRow("e-1", "sms", "+915555", 2, "sent", nil, now.Add(time.Minute))

	mock.ExpectQuery(`FROM emergencies\s+WHERE id = \$1`).
		WithArgs("e-1").
		WillReturnRows(rows)
	mock.ExpectQuery(`FROM notification_outcomes\s+WHERE emergency_id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(outcomes)

	e, err := repo.Get(context.Background(), "e-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartiallyFailed, e.Status)
	require.Len(t, e.Findings, 1)
	assert.Equal(t, models.FindingFall, e.Findings[0].Kind)
	require.NotNil(t, e.Assessment)
	assert.Equal(t, models.TierMedium, e.Assessment.Tier)
	require.NotNil(t, e.Location)
	assert.Equal(t, 12.9, e.Location.Lat)
	assert.Nil(t, e.ResolvedAt)
	assert.Empty(t, e.Responders)

	require.Len(t, e.Outcomes, 2)
	assert.Equal(t, "timeout", e.Outcomes[0].Error)
	assert.False(t, e.HasFailures())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmergency_NotFound(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM emergencies`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	e, err := repo.Get(context.Background(), "missing")
	assert.Nil(t, e)
	assert.True(t, errors.Is(err, models.ErrEmergencyNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	resolvedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE emergencies\s+SET status = \$2, resolved_at = COALESCE\(\$3, resolved_at\)`).
		WithArgs("e-1", "resolved", resolvedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE emergencies`).
		WithArgs("missing", "cancelled", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, repo.UpdateStatus(ctx, "e-1", models.StatusResolved, &resolvedAt))

	err := repo.UpdateStatus(ctx, "missing", models.StatusCancelled, nil)
	assert.True(t, errors.Is(err, models.ErrEmergencyNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendOutcome(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	now := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	o := models.NotificationOutcome{Channel: models.ChannelSMS, Target: "+915555", Attempt: 1, Status: models.OutcomeSent, Timestamp: now}

	mock.ExpectExec(`INSERT INTO notification_outcomes .* ON CONFLICT \(emergency_id, channel_key, attempt\) DO NOTHING`).
		WithArgs("e-1", "sms", "+915555", "sms:+915555", 1, "sent", nil, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO notification_outcomes`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO notification_outcomes`).
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})

	ctx := context.Background()
	require.NoError(t, repo.AppendOutcome(ctx, "e-1", o))

	err := repo.AppendOutcome(ctx, "e-1", o)
	assert.True(t, errors.Is(err, models.ErrDuplicateOutcome))

	err = repo.AppendOutcome(ctx, "missing", o)
	assert.True(t, errors.Is(err, models.ErrEmergencyNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetResponders(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE emergencies SET responders = \$2 WHERE id = \$1`).
		WithArgs("e-1", `[{"name":"City Ambulance 1","contact":"+91-108","type":"ambulance","eta":"8 mins"}]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetResponders(context.Background(), "e-1", []models.Responder{
		{Name: "City Ambulance 1", Contact: "+91-108", Type: models.ResponderAmbulance, ETA: "8 mins"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBySubject(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	now := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	rows := sqlmock.NewRows(emergencyRowColumns).
		AddRow("e-2", "subject-1", "SOS", `[]`, `{}`, nil, nil, nil, "completed", `[]`, now, nil).
		AddRow("e-1", "subject-1", "SOS", `[]`, `{}`, nil, nil, nil, "resolved", `[]`, now.Add(-time.Hour), now)
	outcomes := sqlmock.NewRows(outcomeRowColumns).
		AddRow("e-1", "email", "ops@example.com", 1, "sent", nil, now.Add(-time.Hour))

	mock.ExpectQuery(`FROM emergencies\s+WHERE subject_id = \$1\s+ORDER BY created_at DESC, id\s+LIMIT \$2`).
		WithArgs("subject-1", 10).
		WillReturnRows(rows)
	mock.ExpectQuery(`FROM notification_outcomes`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(outcomes)

	list, err := repo.ListBySubject(context.Background(), "subject-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e-2", list[0].ID)
	assert.Nil(t, list[0].Location)
	assert.Empty(t, list[0].Outcomes)
	require.Len(t, list[1].Outcomes, 1)
	require.NotNil(t, list[1].ResolvedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountBySubject(t *testing.T) {
	db, mock, repo := setupMockEmergencyDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM emergencies`).
		WithArgs("subject-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.CountBySubject(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
