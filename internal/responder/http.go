package responder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"rescuenet/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// nearbyResponse 调度服务响应
type nearbyResponse struct {
	Responders []struct {
		Name    string `json:"name"`
		Contact string `json:"contact"`
		Type    string `json:"type"`
		ETA     string `json:"eta"`
	} `json:"responders"`
}

// HTTPLookup 通过外部调度服务查询附近救援方
// GET {base}/responders/nearby?lat=..&lng=..&kind=..
type HTTPLookup struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPLookup 创建 HTTP 查询
func NewHTTPLookup(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPLookup {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &HTTPLookup{httpClient: client, logger: logger}
}

func (l *HTTPLookup) FindNearby(ctx context.Context, loc models.Location, kind models.ResponderKind) ([]models.Responder, error) {
	var response nearbyResponse
	resp, err := l.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":  strconv.FormatFloat(loc.Lat, 'f', 6, 64),
			"lng":  strconv.FormatFloat(loc.Lng, 'f', 6, 64),
			"kind": string(kind),
		}).
		SetResult(&response).
		Get("/responders/nearby")
	if err != nil {
		return nil, fmt.Errorf("failed to call responder service: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("responder service error (status: %d)", resp.StatusCode())
	}

	responders := make([]models.Responder, 0, len(response.Responders))
	for _, r := range response.Responders {
		typ := models.ResponderKind(r.Type)
		if typ == "" {
			typ = kind
		}
		responders = append(responders, models.Responder{Name: r.Name, Contact: r.Contact, Type: typ, ETA: r.ETA})
	}

	l.logger.Debug("Responders found",
		zap.String("kind", string(kind)),
		zap.Int("count", len(responders)),
	)
	return responders, nil
}

// Lookup 与 dispatcher.ResponderLookup 相同
type Lookup interface {
	FindNearby(ctx context.Context, loc models.Location, kind models.ResponderKind) ([]models.Responder, error)
}

// New 按 provider 选择实现
func New(provider, baseURL string, timeout time.Duration, logger *zap.Logger) (Lookup, error) {
	switch provider {
	case "", "mock":
		return NewMockLookup(), nil
	case "http":
		if baseURL == "" {
			return nil, fmt.Errorf("http responder provider requires a base URL")
		}
		return NewHTTPLookup(baseURL, timeout, logger), nil
	}
	return nil, fmt.Errorf("unknown responder provider %q", provider)
}
