package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rescuenet/internal/models"
)

// Ingestor 接收一条生命体征样本
type Ingestor interface {
	Ingest(ctx context.Context, sample models.VitalSample) error
}

// IngestFunc 函数适配 Ingestor
type IngestFunc func(ctx context.Context, sample models.VitalSample) error

func (f IngestFunc) Ingest(ctx context.Context, sample models.VitalSample) error {
	return f(ctx, sample)
}

// decodeSample 解析设备上报 JSON
// subject_id 缺失时取 fallbackSubject，timestamp 缺失时取 now
func decodeSample(payload []byte, fallbackSubject string, now time.Time) (models.VitalSample, error) {
	var sample models.VitalSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return sample, fmt.Errorf("failed to unmarshal vital sample: %w", err)
	}
	if sample.SubjectID == "" {
		sample.SubjectID = fallbackSubject
	}
	if sample.SubjectID == "" {
		return sample, fmt.Errorf("vital sample has no subject_id")
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = now
	}
	return sample, nil
}

// subjectFromTopic 主题格式: rescuenet/{subject_id}/vitals
func subjectFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
