package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"rescuenet/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	EmergencySheet    = "Emergencies"
	NotificationSheet = "Notifications"
	timeLayout        = "2006-01-02 15:04:05"
)

// EmergencyHeader 紧急事件表头
var EmergencyHeader = []string{
	"Emergency ID",
	"Subject ID",
	"Status",
	"Reason",
	"Severity Score",
	"Severity Tier",
	"Findings",
	"Location",
	"Responders",
	"Created At",
	"Resolved At",
}

// NotificationHeader 通知结果表头
var NotificationHeader = []string{
	"Emergency ID",
	"Channel",
	"Target",
	"Attempt",
	"Status",
	"Error",
	"Sent At",
}

// GenerateEmergencyHistory 导出紧急事件历史为 xlsx
// 时间按 loc 格式化，list 为空时只生成表头
func GenerateEmergencyHistory(list []*models.Emergency, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", EmergencySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(NotificationSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeader(f, EmergencySheet, EmergencyHeader, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHeader(f, NotificationSheet, NotificationHeader, headerStyle); err != nil {
		return nil, err
	}

	emergencyRow, notificationRow := 2, 2
	for _, e := range list {
		if err := setRow(f, EmergencySheet, emergencyRow, emergencyValues(e, loc)); err != nil {
			return nil, err
		}
		emergencyRow++

		for _, o := range e.Outcomes {
			values := []interface{}{
				e.ID,
				string(o.Channel),
				o.Target,
				o.Attempt,
				string(o.Status),
				o.Error,
				o.Timestamp.In(loc).Format(timeLayout),
			}
			if err := setRow(f, NotificationSheet, notificationRow, values); err != nil {
				return nil, err
			}
			notificationRow++
		}
	}

	for sheet, widths := range map[string][]float64{
		EmergencySheet:    {38, 20, 18, 40, 14, 14, 50, 24, 40, 20, 20},
		NotificationSheet: {38, 12, 30, 10, 10, 40, 20},
	} {
		for i, w := range widths {
			col, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, fmt.Errorf("failed to convert column number: %w", err)
			}
			if err := f.SetColWidth(sheet, col, col, w); err != nil {
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func emergencyValues(e *models.Emergency, loc *time.Location) []interface{} {
	var score, tier interface{} = "", ""
	if e.Assessment != nil {
		score, tier = e.Assessment.Score, string(e.Assessment.Tier)
	}

	findings := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		findings = append(findings, f.Description)
	}

	location := ""
	if e.Location != nil {
		location = fmt.Sprintf("%.6f, %.6f", e.Location.Lat, e.Location.Lng)
	}

	responders := make([]string, 0, len(e.Responders))
	for _, r := range e.Responders {
		responders = append(responders, fmt.Sprintf("%s (%s, %s)", r.Name, r.Type, r.ETA))
	}

	resolvedAt := ""
	if e.ResolvedAt != nil {
		resolvedAt = e.ResolvedAt.In(loc).Format(timeLayout)
	}

	return []interface{}{
		e.ID,
		e.SubjectID,
		string(e.Status),
		e.Reason,
		score,
		tier,
		strings.Join(findings, "; "),
		location,
		strings.Join(responders, "; "),
		e.CreatedAt.In(loc).Format(timeLayout),
		resolvedAt,
	}
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := setRow(f, sheet, 1, values); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
