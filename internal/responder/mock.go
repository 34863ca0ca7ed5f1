package responder

import (
	"context"

	"rescuenet/internal/models"
)

// 演示用的固定救援方数据
var mockResponders = map[models.ResponderKind][]models.Responder{
	models.ResponderAmbulance: {
		{Name: "City Ambulance 1", Contact: "+919876543210", Type: models.ResponderAmbulance, ETA: "8 min"},
		{Name: "Private Ambulance", Contact: "+919876543211", Type: models.ResponderAmbulance, ETA: "12 min"},
	},
	models.ResponderVolunteer: {
		{Name: "Dr. Volunteer 1", Contact: "+919876543212", Type: models.ResponderVolunteer, ETA: "3 min"},
		{Name: "First Aid Volunteer", Contact: "+919876543213", Type: models.ResponderVolunteer, ETA: "5 min"},
	},
	models.ResponderHospital: {
		{Name: "City General Hospital", Contact: "+1-555-HOSPITAL", Type: models.ResponderHospital, ETA: "12-15 minutes"},
	},
}

// MockLookup 固定数据的救援方查询，不依赖外部服务
type MockLookup struct{}

// NewMockLookup 创建 mock 查询
func NewMockLookup() *MockLookup {
	return &MockLookup{}
}

// FindNearby 未知类型返回空列表
func (m *MockLookup) FindNearby(ctx context.Context, _ models.Location, kind models.ResponderKind) ([]models.Responder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]models.Responder{}, mockResponders[kind]...), nil
}
