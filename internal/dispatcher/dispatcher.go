package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rescuenet/internal/config"
	"rescuenet/internal/models"
	"rescuenet/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChannelTimeout = 8 * time.Second
	defaultMaxParallel    = 4
)

// ProfileStore 读取被监护人档案
type ProfileStore interface {
	GetProfile(ctx context.Context, subjectID string) (*models.SubjectProfile, error)
}

// ResponderLookup 查询附近救援方（尽力而为）
type ResponderLookup interface {
	FindNearby(ctx context.Context, loc models.Location, kind models.ResponderKind) ([]models.Responder, error)
}

// EscalationRequest 升级请求
type EscalationRequest struct {
	ID         string // 为空时生成；相同 ID 重复触发会被拒绝
	SubjectID  string
	Reason     string // 为空时由 findings 生成
	Findings   []models.Finding
	Vitals     models.VitalSample
	Location   *models.Location // 为空时取 Vitals.Location
	Assessment *models.SeverityAssessment
	Profile    *models.SubjectProfile // 为空时从 ProfileStore 读取
}

// DefaultReason 由异常描述拼接升级原因
func DefaultReason(findings []models.Finding) string {
	if len(findings) == 0 {
		return "Emergency alert"
	}
	descs := make([]string, 0, len(findings))
	for _, f := range findings {
		descs = append(descs, f.Description)
	}
	return "Health anomaly detected: " + strings.Join(descs, ", ")
}

// dispatchRun 进行中的一次分发，取消只阻止尚未开始的尝试
type dispatchRun struct {
	cancelled atomic.Bool
}

// Dispatcher 紧急事件升级与多渠道通知
type Dispatcher struct {
	config     *config.Config
	store      EmergencyStore
	profiles   ProfileStore
	channels   map[models.ChannelType]notify.Channel
	responders ResponderLookup
	guard      IdempotencyGuard
	renderer   *Renderer
	location   *time.Location
	logger     *zap.Logger

	timeout     time.Duration
	maxParallel int

	locks keyedMutex
	mu    sync.Mutex
	runs  map[string]*dispatchRun

	now   func() time.Time
	newID func() string
}

// NewDispatcher 创建分发器；profiles、responders、guard 可为 nil
func NewDispatcher(
	cfg *config.Config,
	store EmergencyStore,
	profiles ProfileStore,
	channels []notify.Channel,
	responders ResponderLookup,
	guard IdempotencyGuard,
	logger *zap.Logger,
) *Dispatcher {
	d := &Dispatcher{
		config:      cfg,
		store:       store,
		profiles:    profiles,
		channels:    make(map[models.ChannelType]notify.Channel),
		responders:  responders,
		guard:       guard,
		renderer:    NewRenderer(cfg.Dispatch.SMSMaxLength),
		location:    cfg.Location(),
		logger:      logger,
		timeout:     cfg.Dispatch.ChannelTimeout,
		maxParallel: cfg.Dispatch.MaxParallel,
		runs:        make(map[string]*dispatchRun),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if d.guard == nil {
		d.guard = NewMemoryGuard()
	}
	if d.timeout <= 0 {
		d.timeout = defaultChannelTimeout
	}
	if d.maxParallel <= 0 {
		d.maxParallel = defaultMaxParallel
	}
	for _, ch := range channels {
		if _, ok := d.channels[ch.Type()]; ok {
			logger.Warn("Duplicate channel type, keeping the first one", zap.String("channel", string(ch.Type())))
			continue
		}
		d.channels[ch.Type()] = ch
	}
	return d
}

// Escalate 创建紧急事件并向所有目标分发
// 同一 ID 已存在时返回已存储的事件和 models.ErrDuplicateEscalation，不会再次分发
func (d *Dispatcher) Escalate(ctx context.Context, req EscalationRequest) (*models.Emergency, error) {
	id := req.ID
	if id == "" {
		id = d.newID()
	}

	unlock := d.locks.Lock(id)
	if existing, err := d.store.Get(ctx, id); err == nil {
		unlock()
		d.logger.Info("Duplicate escalation rejected", zap.String("emergency_id", id))
		return existing, models.ErrDuplicateEscalation
	} else if !errors.Is(err, models.ErrEmergencyNotFound) {
		unlock()
		return nil, fmt.Errorf("failed to load emergency: %w", err)
	}

	// 跨实例去重
	if !d.acquire(ctx, "escalate:"+id) {
		unlock()
		d.logger.Info("Escalation already claimed by another dispatcher", zap.String("emergency_id", id))
		existing, err := d.store.Get(ctx, id)
		if err != nil {
			return nil, models.ErrDuplicateEscalation
		}
		return existing, models.ErrDuplicateEscalation
	}

	reason := req.Reason
	if reason == "" {
		reason = DefaultReason(req.Findings)
	}
	vitals := req.Vitals.Sanitized()
	location := req.Location
	if location == nil {
		location = vitals.Location
	}

	e := &models.Emergency{
		ID:         id,
		SubjectID:  req.SubjectID,
		Reason:     reason,
		Findings:   req.Findings,
		Vitals:     vitals,
		Location:   location,
		Assessment: req.Assessment,
		Status:     models.StatusCreated,
		CreatedAt:  d.now(),
		Responders: []models.Responder{},
		Outcomes:   []models.NotificationOutcome{},
	}
	if e.Findings == nil {
		e.Findings = []models.Finding{}
	}

	if err := d.store.Create(ctx, e); err != nil {
		unlock()
		if errors.Is(err, models.ErrDuplicateEscalation) {
			existing, gerr := d.store.Get(ctx, id)
			if gerr != nil {
				return nil, models.ErrDuplicateEscalation
			}
			return existing, models.ErrDuplicateEscalation
		}
		return nil, fmt.Errorf("failed to create emergency: %w", err)
	}

	if err := d.store.UpdateStatus(ctx, id, models.StatusDispatching, nil); err != nil {
		unlock()
		return nil, fmt.Errorf("failed to mark emergency dispatching: %w", err)
	}
	e.Status = models.StatusDispatching
	run := d.startRun(id)
	unlock()
	defer d.finishRun(id)

	d.logger.Info("Emergency created",
		zap.String("emergency_id", id),
		zap.String("subject_id", e.SubjectID),
		zap.String("reason", reason),
		zap.Int("finding_count", len(e.Findings)),
	)

	profile := req.Profile
	if profile == nil {
		profile = d.loadProfile(ctx, e.SubjectID)
	}

	// 分发开始后的写入不再受调用方取消影响
	writeCtx := context.WithoutCancel(ctx)

	d.lookupResponders(ctx, writeCtx, e)
	d.fanOut(ctx, writeCtx, e, profile, run)
	return d.finalize(writeCtx, id)
}

// Retry 重发某个渠道键，仅当其最近一次结果为失败时允许
// attempt 为上一次 +1，同一 attempt 最多发送一次
func (d *Dispatcher) Retry(ctx context.Context, emergencyID, channelKey string) (*models.Emergency, error) {
	target, err := ParseChannelKey(channelKey)
	if err != nil {
		return nil, err
	}

	unlock := d.locks.Lock(emergencyID)
	e, err := d.store.Get(ctx, emergencyID)
	if err != nil {
		unlock()
		return nil, err
	}
	if e.Status.IsTerminal() || e.Status == models.StatusCreated {
		unlock()
		return nil, fmt.Errorf("%w: cannot retry while %s", models.ErrInvalidTransition, e.Status)
	}
	last, ok := e.LastOutcome(channelKey)
	if !ok || last.Status != models.OutcomeFailed {
		unlock()
		return nil, fmt.Errorf("%w: %s has no failed attempt to retry", models.ErrRetryNotAllowed, channelKey)
	}
	if _, ok := d.channels[target.Channel]; !ok {
		unlock()
		return nil, fmt.Errorf("no channel configured for %s", target.Channel)
	}
	attempt := last.Attempt + 1
	if !d.acquire(ctx, attemptToken(emergencyID, channelKey, attempt)) {
		unlock()
		return nil, fmt.Errorf("%w: attempt %d of %s already claimed", models.ErrRetryNotAllowed, attempt, channelKey)
	}
	unlock()

	writeCtx := context.WithoutCancel(ctx)
	profile := d.loadProfile(ctx, e.SubjectID)
	msg, renderErr := d.renderer.Render(target.Channel, NewTemplateContext(e, profile, d.config.Dispatch.DashboardURL, d.location))
	d.deliver(ctx, writeCtx, emergencyID, target, msg, renderErr, attempt)

	unlock = d.locks.Lock(emergencyID)
	defer unlock()
	cur, err := d.store.Get(writeCtx, emergencyID)
	if err != nil {
		return nil, err
	}
	if cur.Status == models.StatusPartiallyFailed && !cur.HasFailures() {
		if err := d.store.UpdateStatus(writeCtx, emergencyID, models.StatusCompleted, nil); err != nil {
			return nil, fmt.Errorf("failed to update emergency status: %w", err)
		}
		cur.Status = models.StatusCompleted
	}
	return cur, nil
}

// Resolve 人工确认处理完毕
func (d *Dispatcher) Resolve(ctx context.Context, emergencyID string) (*models.Emergency, error) {
	return d.close(ctx, emergencyID, models.StatusResolved)
}

// Cancel 取消事件；进行中的发送会完成并记录，未开始的不再发送
func (d *Dispatcher) Cancel(ctx context.Context, emergencyID string) (*models.Emergency, error) {
	return d.close(ctx, emergencyID, models.StatusCancelled)
}

// Get 读取事件快照
func (d *Dispatcher) Get(ctx context.Context, emergencyID string) (*models.Emergency, error) {
	return d.store.Get(ctx, emergencyID)
}

func (d *Dispatcher) close(ctx context.Context, id string, to models.EmergencyStatus) (*models.Emergency, error) {
	unlock := d.locks.Lock(id)
	defer unlock()

	e, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, e.Status, to)
	}

	now := d.now()
	if to == models.StatusCancelled {
		d.cancelRun(id)
	}
	if err := d.store.UpdateStatus(ctx, id, to, &now); err != nil {
		return nil, fmt.Errorf("failed to update emergency status: %w", err)
	}
	e.Status = to
	e.ResolvedAt = &now

	d.logger.Info("Emergency closed",
		zap.String("emergency_id", id),
		zap.String("status", string(to)),
	)
	return e, nil
}

func (d *Dispatcher) loadProfile(ctx context.Context, subjectID string) *models.SubjectProfile {
	if d.profiles != nil {
		profile, err := d.profiles.GetProfile(ctx, subjectID)
		if err == nil && profile != nil {
			return profile
		}
		d.logger.Warn("Failed to load subject profile, notifying default targets only",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	}
	return &models.SubjectProfile{SubjectID: subjectID}
}

// lookupResponders 按配置的类型查询附近救援方，失败只记录
func (d *Dispatcher) lookupResponders(ctx, writeCtx context.Context, e *models.Emergency) {
	if d.responders == nil || e.Location == nil {
		return
	}

	var found []models.Responder
	for _, kind := range d.config.Dispatch.ResponderKinds {
		lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
		rs, err := d.responders.FindNearby(lookupCtx, *e.Location, models.ResponderKind(kind))
		cancel()
		if err != nil {
			d.logger.Warn("Responder lookup failed",
				zap.String("emergency_id", e.ID),
				zap.String("kind", kind),
				zap.Error(err),
			)
			continue
		}
		found = append(found, rs...)
	}
	if len(found) == 0 {
		return
	}

	if err := d.store.SetResponders(writeCtx, e.ID, found); err != nil {
		d.logger.Error("Failed to save responders", zap.String("emergency_id", e.ID), zap.Error(err))
		return
	}
	e.Responders = found
}

// fanOut 并发向各目标发送，单个失败不影响其他目标
func (d *Dispatcher) fanOut(ctx, writeCtx context.Context, e *models.Emergency, profile *models.SubjectProfile, run *dispatchRun) {
	targets := d.targetsFor(profile)
	if len(targets) == 0 {
		d.logger.Warn("No notification targets for emergency",
			zap.String("emergency_id", e.ID),
			zap.String("subject_id", e.SubjectID),
		)
		return
	}

	// 每种渠道只渲染一次
	type rendered struct {
		msg notify.Message
		err error
	}
	tc := NewTemplateContext(e, profile, d.config.Dispatch.DashboardURL, d.location)
	messages := make(map[models.ChannelType]rendered)
	for _, t := range targets {
		if _, ok := messages[t.Channel]; !ok {
			msg, err := d.renderer.Render(t.Channel, tc)
			messages[t.Channel] = rendered{msg: msg, err: err}
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(d.maxParallel)
	for _, t := range targets {
		if run.cancelled.Load() {
			break
		}
		g.Go(func() error {
			if run.cancelled.Load() {
				return nil
			}
			if !d.acquire(ctx, attemptToken(e.ID, t.Key(), 1)) {
				d.logger.Info("Notification attempt already claimed",
					zap.String("emergency_id", e.ID),
					zap.String("channel_key", t.Key()),
				)
				return nil
			}
			r := messages[t.Channel]
			d.deliver(ctx, writeCtx, e.ID, t, r.msg, r.err, 1)
			return nil
		})
	}
	_ = g.Wait()

	if run.cancelled.Load() {
		d.logger.Info("Dispatch cancelled, pending targets skipped", zap.String("emergency_id", e.ID))
	}
}

// targetsFor 只保留已配置渠道的目标
func (d *Dispatcher) targetsFor(profile *models.SubjectProfile) []Target {
	all := EnumerateTargets(profile, TargetOptions{
		NotifySubjectEmail:     d.config.Dispatch.NotifySubjectEmail,
		OpsChatID:              d.config.Dispatch.OpsChatID,
		EmergencyServicesPhone: d.config.Dispatch.EmergencyServicesPhone,
		Push:                   d.config.Dispatch.PushEnabled,
	})
	targets := all[:0]
	for _, t := range all {
		if _, ok := d.channels[t.Channel]; ok {
			targets = append(targets, t)
		} else {
			d.logger.Debug("Channel not configured, target skipped", zap.String("channel_key", t.Key()))
		}
	}
	return targets
}

// deliver 发送一次并追加结果（令牌已由调用方获取）
func (d *Dispatcher) deliver(ctx, writeCtx context.Context, id string, t Target, msg notify.Message, renderErr error, attempt int) models.NotificationOutcome {
	err := renderErr
	if err == nil {
		err = d.send(ctx, t, msg)
	}

	outcome := models.NotificationOutcome{
		Channel:   t.Channel,
		Target:    t.Address,
		Attempt:   attempt,
		Status:    models.OutcomeSent,
		Timestamp: d.now(),
	}
	if err != nil {
		outcome.Status = models.OutcomeFailed
		outcome.Error = err.Error()
		d.logger.Warn("Notification failed",
			zap.String("emergency_id", id),
			zap.String("channel_key", t.Key()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	} else {
		d.logger.Info("Notification sent",
			zap.String("emergency_id", id),
			zap.String("channel_key", t.Key()),
			zap.Int("attempt", attempt),
		)
	}

	if err := d.store.AppendOutcome(writeCtx, id, outcome); err != nil {
		d.logger.Error("Failed to record notification outcome",
			zap.String("emergency_id", id),
			zap.String("channel_key", t.Key()),
			zap.Error(err),
		)
	}
	return outcome
}

// send 带超时发送；渠道不理会 ctx 时也会按时返回失败
func (d *Dispatcher) send(ctx context.Context, t Target, msg notify.Message) error {
	ch := d.channels[t.Channel]

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(sendCtx, t.Address, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		return fmt.Errorf("%s send timed out after %s: %w", t.Channel, d.timeout, sendCtx.Err())
	}
}

// finalize 根据结果确定 completed / partially_failed；已被取消或关闭的保持原状态
func (d *Dispatcher) finalize(ctx context.Context, id string) (*models.Emergency, error) {
	unlock := d.locks.Lock(id)
	defer unlock()

	e, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload emergency: %w", err)
	}
	if e.Status == models.StatusDispatching {
		next := models.StatusCompleted
		if e.HasFailures() {
			next = models.StatusPartiallyFailed
		}
		if err := d.store.UpdateStatus(ctx, id, next, nil); err != nil {
			return nil, fmt.Errorf("failed to update emergency status: %w", err)
		}
		e.Status = next
	}

	d.logger.Info("Emergency dispatch finished",
		zap.String("emergency_id", id),
		zap.String("status", string(e.Status)),
		zap.Int("outcome_count", len(e.Outcomes)),
	)
	return e, nil
}

// acquire 令牌存储不可用时放行，进程内锁仍保证串行
func (d *Dispatcher) acquire(ctx context.Context, key string) bool {
	ok, err := d.guard.Acquire(ctx, key, d.config.Dispatch.IdempotencyTTL)
	if err != nil {
		d.logger.Warn("Idempotency guard unavailable, proceeding", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

func attemptToken(emergencyID, channelKey string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", emergencyID, channelKey, attempt)
}

func (d *Dispatcher) startRun(id string) *dispatchRun {
	d.mu.Lock()
	defer d.mu.Unlock()
	run := &dispatchRun{}
	d.runs[id] = run
	return run
}

func (d *Dispatcher) finishRun(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.runs, id)
}

func (d *Dispatcher) cancelRun(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if run, ok := d.runs[id]; ok {
		run.cancelled.Store(true)
	}
}
