package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"rescuenet/internal/analytics"
	"rescuenet/internal/config"
	"rescuenet/internal/detector"
	"rescuenet/internal/dispatcher"
	"rescuenet/internal/models"
	"rescuenet/internal/report"
	"rescuenet/internal/severity"

	"go.uber.org/zap"
)

// HistoryStore 生命体征历史窗口
type HistoryStore interface {
	GetWindow(ctx context.Context, subjectID string, metric models.Metric, q models.WindowQuery) ([]models.VitalSample, error)
}

// SampleWriter 样本持久化
type SampleWriter interface {
	InsertSample(ctx context.Context, s models.VitalSample) error
}

// EmergencyHistory 紧急事件历史查询
type EmergencyHistory interface {
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]*models.Emergency, error)
	CountBySubject(ctx context.Context, subjectID string) (int, error)
}

// WindowInvalidator 新样本入库后清理窗口缓存
type WindowInvalidator interface {
	Invalidate(ctx context.Context, subjectID string) error
}

// Deps 服务依赖；Invalidator 可为 nil
type Deps struct {
	History     HistoryStore
	Samples     SampleWriter
	Profiles    dispatcher.ProfileStore
	Emergencies EmergencyHistory
	Dispatcher  *dispatcher.Dispatcher
	Invalidator WindowInvalidator
}

// IngestResult 一条样本的处理结果，Emergency 为 nil 表示未升级
type IngestResult struct {
	Sample      models.VitalSample
	InputErrors []models.InputError
	Findings    []models.Finding
	Assessment  models.SeverityAssessment
	Emergency   *models.Emergency
}

// MonitorService 检测、分析、评分与升级的入口
type MonitorService struct {
	config    *config.Config
	deps      Deps
	threshold *detector.ThresholdDetector
	outliers  *detector.OutlierDetector
	miner     *analytics.PatternMiner
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewMonitorService 创建服务
func NewMonitorService(cfg *config.Config, deps Deps, logger *zap.Logger) *MonitorService {
	loc := cfg.Location()
	outliers := detector.NewOutlierDetector(cfg.Monitor.OutlierMinSamples)

	patternCfg := analytics.DefaultPatternConfig()
	if cfg.Monitor.Patterns.MinSamples > 0 {
		patternCfg.MinSamples = cfg.Monitor.Patterns.MinSamples
	}
	if cfg.Monitor.Patterns.DailyRhythmDelta > 0 {
		patternCfg.DailyRhythmDelta = cfg.Monitor.Patterns.DailyRhythmDelta
	}
	if cfg.Monitor.Patterns.WeeklyStressDelta > 0 {
		patternCfg.WeeklyStressDelta = cfg.Monitor.Patterns.WeeklyStressDelta
	}
	patternCfg.Location = loc

	return &MonitorService{
		config:    cfg,
		deps:      deps,
		threshold: detector.NewThresholdDetector(RulesFromConfig(cfg)),
		outliers:  outliers,
		miner:     analytics.NewPatternMiner(patternCfg, outliers),
		location:  loc,
		logger:    logger,
		now:       time.Now,
	}
}

// RulesFromConfig 配置中未设置（零值）的阈值使用默认规则
func RulesFromConfig(cfg *config.Config) detector.Rules {
	rules := detector.DefaultRules()
	m := cfg.Monitor
	if m.HeartRateMin != 0 || m.HeartRateMax != 0 {
		rules.HeartRate = detector.Bounds{Min: m.HeartRateMin, Max: m.HeartRateMax}
	}
	if m.TemperatureMin != 0 || m.TemperatureMax != 0 {
		rules.Temperature = detector.Bounds{Min: m.TemperatureMin, Max: m.TemperatureMax}
	}
	if m.SystolicMin != 0 || m.SystolicMax != 0 {
		rules.Systolic = detector.Bounds{Min: m.SystolicMin, Max: m.SystolicMax}
	}
	if m.FallMagnitude > 0 {
		rules.FallMagnitude = m.FallMagnitude
	}
	rules.BaselinePercent = m.BaselinePercent
	return rules
}

// Evaluate 单样本阈值检测，profile 可为 nil
func (s *MonitorService) Evaluate(sample models.VitalSample, profile *models.SubjectProfile) []models.Finding {
	return s.threshold.Evaluate(sample, profile)
}

// AnalyzeWindow 某指标的趋势；window 为 nil 时读取最近 HistoryLimit 条历史
func (s *MonitorService) AnalyzeWindow(ctx context.Context, subjectID string, metric models.Metric, window []models.VitalSample) (models.TrendReport, error) {
	if window == nil {
		var err error
		window, err = s.recentWindow(ctx, subjectID, metric)
		if err != nil {
			return models.TrendReport{}, err
		}
	}
	return analytics.Trend(window, metric), nil
}

// MinePatterns 规律挖掘；window 为 nil 时读取历史
func (s *MonitorService) MinePatterns(ctx context.Context, subjectID string, window []models.VitalSample) ([]models.Pattern, error) {
	if window == nil {
		var err error
		window, err = s.recentWindow(ctx, subjectID, "")
		if err != nil {
			return nil, err
		}
	}
	return s.miner.Mine(window), nil
}

// Score 严重度评分
func (s *MonitorService) Score(vitals models.VitalSample, profile *models.SubjectProfile) models.SeverityAssessment {
	return severity.Score(vitals, profile)
}

// Escalate 创建紧急事件并分发；未提供评分时按快照评分
func (s *MonitorService) Escalate(ctx context.Context, req dispatcher.EscalationRequest) (*models.Emergency, error) {
	if req.SubjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if req.Vitals.SubjectID == "" {
		req.Vitals.SubjectID = req.SubjectID
	}
	if req.Profile == nil {
		req.Profile = s.loadProfile(ctx, req.SubjectID)
	}
	if req.Assessment == nil {
		a := s.Score(req.Vitals, req.Profile)
		req.Assessment = &a
	}
	return s.deps.Dispatcher.Escalate(ctx, req)
}

// Ingest 样本接入：校验、入库、阈值检测、心率离群检测、评分，有异常时升级
// 非法指标只跳过该指标（从入库样本中移除），存储失败才返回错误
func (s *MonitorService) Ingest(ctx context.Context, sample models.VitalSample) (*IngestResult, error) {
	if sample.SubjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}

	inputErrors := sample.Validate()
	for _, ie := range inputErrors {
		s.logger.Warn("Skipping invalid metric",
			zap.String("subject_id", sample.SubjectID),
			zap.String("metric", ie.Metric),
			zap.String("reason", ie.Reason),
		)
	}
	// 非法指标置空后再入库和升级
	sample = sample.Sanitized()
	result := &IngestResult{Sample: sample, InputErrors: inputErrors}

	if err := s.deps.Samples.InsertSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("failed to persist sample: %w", err)
	}
	if s.deps.Invalidator != nil {
		if err := s.deps.Invalidator.Invalidate(ctx, sample.SubjectID); err != nil {
			s.logger.Warn("Failed to invalidate window cache",
				zap.String("subject_id", sample.SubjectID),
				zap.Error(err),
			)
		}
	}

	profile := s.loadProfile(ctx, sample.SubjectID)
	findings := s.threshold.Evaluate(sample, profile)
	findings = append(findings, s.heartRateOutlier(ctx, sample)...)
	result.Findings = findings
	result.Assessment = s.Score(sample, profile)

	if len(findings) == 0 {
		return result, nil
	}

	assessment := result.Assessment
	e, err := s.deps.Dispatcher.Escalate(ctx, dispatcher.EscalationRequest{
		SubjectID:  sample.SubjectID,
		Findings:   findings,
		Vitals:     sample,
		Assessment: &assessment,
		Profile:    profile,
	})
	if err != nil && !errors.Is(err, models.ErrDuplicateEscalation) {
		return result, fmt.Errorf("failed to escalate: %w", err)
	}
	result.Emergency = e
	return result, nil
}

// heartRateOutlier 当前心率相对最近窗口离群时返回 statistical_outlier
// 窗口已包含刚写入的样本
func (s *MonitorService) heartRateOutlier(ctx context.Context, sample models.VitalSample) []models.Finding {
	if sample.HeartRate == nil || sample.InvalidMetrics()[string(models.MetricHeartRate)] {
		return nil
	}
	limit := s.config.Monitor.OutlierWindow
	if limit <= 0 {
		return nil
	}
	window, err := s.deps.History.GetWindow(ctx, sample.SubjectID, models.MetricHeartRate, models.WindowQuery{Limit: limit})
	if err != nil {
		s.logger.Warn("Failed to load heart rate window",
			zap.String("subject_id", sample.SubjectID),
			zap.Error(err),
		)
		return nil
	}

	values := validValues(models.Values(window, models.MetricHeartRate))
	lower, upper, ok := s.outliers.Bounds(values)
	if !ok {
		return nil
	}
	if hr := *sample.HeartRate; hr >= lower && hr <= upper {
		return nil
	}
	return s.outliers.Detect(models.MetricHeartRate, values)
}

// TriggerSOS 人工触发，总是升级；快照取最近一条历史样本
func (s *MonitorService) TriggerSOS(ctx context.Context, subjectID, reason string, location *models.Location) (*models.Emergency, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if reason == "" {
		reason = "Manual SOS triggered"
	}

	vitals := models.VitalSample{SubjectID: subjectID, Timestamp: s.now()}
	window, err := s.deps.History.GetWindow(ctx, subjectID, "", models.WindowQuery{Limit: 1})
	if err != nil {
		s.logger.Warn("Failed to load latest sample for SOS",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	} else if len(window) > 0 {
		vitals = window[len(window)-1]
	}

	s.logger.Info("SOS triggered",
		zap.String("subject_id", subjectID),
		zap.String("reason", reason),
	)
	return s.Escalate(ctx, dispatcher.EscalationRequest{
		SubjectID: subjectID,
		Reason:    reason,
		Vitals:    vitals,
		Location:  location,
	})
}

// BuildInsightReport 趋势、规律、建议、近 7 天统计与紧急事件数
func (s *MonitorService) BuildInsightReport(ctx context.Context, subjectID string) (*models.InsightReport, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	window, err := s.recentWindow(ctx, subjectID, "")
	if err != nil {
		return nil, err
	}

	now := s.now()
	since := now.AddDate(0, 0, -7)
	weekly, err := s.deps.History.GetWindow(ctx, subjectID, "", models.WindowQuery{Since: &since, Until: &now})
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly window: %w", err)
	}

	count, err := s.deps.Emergencies.CountBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count emergencies: %w", err)
	}

	profile := s.loadProfile(ctx, subjectID)
	trends := analytics.AnalyzeHealthTrends(window)
	patterns := s.miner.Mine(window)

	r := &models.InsightReport{
		SubjectID:      subjectID,
		Trends:         trends,
		Patterns:       patterns,
		Insights:       analytics.GenerateInsights(profile, &trends, patterns),
		WeeklyStats:    analytics.ComputeWeeklyStats(weekly, now, s.location),
		EmergencyCount: count,
	}
	if len(window) > 0 {
		latest := window[len(window)-1]
		r.Latest = &latest
	}
	return r, nil
}

// ListEmergencies 按创建时间倒序
func (s *MonitorService) ListEmergencies(ctx context.Context, subjectID string, limit int) ([]*models.Emergency, error) {
	list, err := s.deps.Emergencies.ListBySubject(ctx, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergencies: %w", err)
	}
	return list, nil
}

// ExportEmergencyHistory 导出 xlsx
func (s *MonitorService) ExportEmergencyHistory(ctx context.Context, subjectID string) ([]byte, error) {
	list, err := s.ListEmergencies(ctx, subjectID, 0)
	if err != nil {
		return nil, err
	}
	return report.GenerateEmergencyHistory(list, s.location)
}

// GetEmergency 读取事件
func (s *MonitorService) GetEmergency(ctx context.Context, id string) (*models.Emergency, error) {
	return s.deps.Dispatcher.Get(ctx, id)
}

// Resolve 标记已处理
func (s *MonitorService) Resolve(ctx context.Context, id string) (*models.Emergency, error) {
	return s.deps.Dispatcher.Resolve(ctx, id)
}

// Cancel 取消事件
func (s *MonitorService) Cancel(ctx context.Context, id string) (*models.Emergency, error) {
	return s.deps.Dispatcher.Cancel(ctx, id)
}

// Retry 重发失败的渠道
func (s *MonitorService) Retry(ctx context.Context, id, channelKey string) (*models.Emergency, error) {
	return s.deps.Dispatcher.Retry(ctx, id, channelKey)
}

func (s *MonitorService) recentWindow(ctx context.Context, subjectID string, metric models.Metric) ([]models.VitalSample, error) {
	window, err := s.deps.History.GetWindow(ctx, subjectID, metric, models.WindowQuery{Limit: s.config.Monitor.HistoryLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to load history window: %w", err)
	}
	return window, nil
}

// loadProfile 档案缺失不影响检测，按无档案处理
func (s *MonitorService) loadProfile(ctx context.Context, subjectID string) *models.SubjectProfile {
	if s.deps.Profiles == nil {
		return nil
	}
	p, err := s.deps.Profiles.GetProfile(ctx, subjectID)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			s.logger.Debug("No profile for subject", zap.String("subject_id", subjectID))
		} else {
			s.logger.Warn("Failed to load profile",
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
		}
		return nil
	}
	return p
}

func validValues(values []float64) []float64 {
	out := values[:0:0]
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
