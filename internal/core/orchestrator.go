package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"twin_service/internal/clock"
	"twin_service/internal/domain/model"
	"twin_service/internal/domain/repository"
)

const (
	MinHorizon      = 5
	MaxHorizon      = 50
	DefaultHorizon  = 20
	DefaultDebounce = 500 * time.Millisecond
)

var (
	ErrInvalidHorizon = errors.New("horizon out of range")
	ErrNoLocality     = errors.New("no locality selected")
	ErrClosed         = errors.New("orchestrator closed")
)

// Snapshot is a point-in-time copy of the orchestrator state. Baseline and
// Prediction are shared with the orchestrator and must not be modified.
type Snapshot struct {
	Locality         string                  `json:"locality"`
	Baseline         *model.Baseline         `json:"baseline"`
	Actions          model.Actions           `json:"actions"`
	Horizon          int                     `json:"time_horizon_years"`
	Prediction       *model.PredictionResult `json:"prediction"`
	Status           Status                  `json:"overall_status,omitempty"`
	Loading          bool                    `json:"loading"`
	FetchingBaseline bool                    `json:"fetching_baseline"`
	Pending          bool                    `json:"pending"`
	Stale            bool                    `json:"stale"`
	LastError        string                  `json:"last_error,omitempty"`
}

// Idle reports whether nothing is scheduled or outstanding.
func (s Snapshot) Idle() bool {
	return !s.Pending && !s.Loading && !s.FetchingBaseline
}

// Settled reports whether the prediction on display matches the current inputs.
func (s Snapshot) Settled() bool {
	return s.Idle() && s.Prediction != nil && !s.Stale
}

// Failed reports whether the last fetch failed and nothing newer is on its way.
func (s Snapshot) Failed() bool {
	return s.Idle() && s.LastError != ""
}

// Orchestrator owns locality, baseline, action and horizon state, and keeps a
// prediction for them up to date. Changes are debounced; every scheduled
// request carries a sequence number and only the response to the latest one
// is applied.
type Orchestrator struct {
	client   model.TwinClient
	clock    clock.Clock
	logger   *zap.Logger
	recorder repository.ScenarioRecorder
	debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	closed           bool
	locality         string
	baseline         *model.Baseline
	actions          model.Actions
	horizon          int
	prediction       *model.PredictionResult
	status           Status
	stale            bool
	loading          bool
	fetchingBaseline bool
	lastErr          string

	localityGen    uint64
	cancelBaseline context.CancelFunc

	requestSeq    uint64
	timer         *clock.Timer
	cancelPredict context.CancelFunc

	changed chan struct{}
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithDebounce sets the quiet period before a prediction is requested.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) { o.debounce = d }
}

// WithHorizon sets the initial horizon. Values outside [MinHorizon,
// MaxHorizon] are ignored.
func WithHorizon(years int) Option {
	return func(o *Orchestrator) {
		if years >= MinHorizon && years <= MaxHorizon {
			o.horizon = years
		}
	}
}

// WithActions sets the initial action set. Invalid sets are ignored.
func WithActions(a model.Actions) Option {
	return func(o *Orchestrator) {
		if a.Validate() == nil {
			o.actions = a
		}
	}
}

// WithRecorder stores every applied prediction.
func WithRecorder(r repository.ScenarioRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func NewOrchestrator(client model.TwinClient, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		client:   client,
		clock:    clock.Real(),
		logger:   zap.NewNop(),
		debounce: DefaultDebounce,
		ctx:      ctx,
		cancel:   cancel,
		actions:  model.DefaultActions(),
		horizon:  DefaultHorizon,
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SelectLocality makes id the active locality. The previous baseline and
// prediction are cleared before this returns and the new baseline is fetched
// in the background. Selecting the current locality again is a no-op unless
// its baseline failed to load.
func (o *Orchestrator) SelectLocality(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoLocality
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if id == o.locality && (o.baseline != nil || o.fetchingBaseline) {
		return nil
	}

	o.locality = id
	o.baseline = nil
	o.prediction = nil
	o.status = ""
	o.stale = false
	o.lastErr = ""
	o.supersedeLocked()

	o.localityGen++
	if o.cancelBaseline != nil {
		o.cancelBaseline()
	}
	ctx, cancel := context.WithCancel(o.ctx)
	o.cancelBaseline = cancel
	o.fetchingBaseline = true
	o.notifyLocked()

	o.wg.Add(1)
	go o.fetchBaseline(ctx, cancel, o.localityGen, id)
	return nil
}

// SetActions merges patch into the action set. A change invalidates the
// current prediction and schedules a new one.
func (o *Orchestrator) SetActions(patch model.ActionPatch) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}

	next := patch.Apply(o.actions)
	if err := next.Validate(); err != nil {
		return err
	}
	if next == o.actions {
		return nil
	}
	o.actions = next
	o.invalidateLocked()
	return nil
}

// SetHorizon changes the number of simulated years.
func (o *Orchestrator) SetHorizon(years int) error {
	if years < MinHorizon || years > MaxHorizon {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidHorizon, years, MinHorizon, MaxHorizon)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if years == o.horizon {
		return nil
	}
	o.horizon = years
	o.invalidateLocked()
	return nil
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Wait blocks until cond holds for the current state or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		o.mu.Lock()
		snap := o.snapshotLocked()
		changed := o.changed
		closed := o.closed
		o.mu.Unlock()

		if cond(snap) {
			return snap, nil
		}
		if closed {
			return snap, ErrClosed
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Settle waits until the prediction matches the inputs or the last fetch
// failed. A failure is returned as an error.
func (o *Orchestrator) Settle(ctx context.Context) (Snapshot, error) {
	snap, err := o.Wait(ctx, func(s Snapshot) bool { return s.Settled() || s.Failed() })
	if err != nil {
		return snap, err
	}
	if !snap.Settled() {
		return snap, errors.New(snap.LastError)
	}
	return snap, nil
}

// ChatContext describes the current scenario to the assistant.
func (o *Orchestrator) ChatContext() model.ChatContext {
	return ChatContextFrom(o.Snapshot())
}

// Close stops the pending timer, cancels outstanding requests and waits for
// them to return.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.notifyLocked()
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) fetchBaseline(ctx context.Context, cancel context.CancelFunc, gen uint64, id string) {
	defer o.wg.Done()
	defer cancel()

	b, err := o.client.GetBaseline(ctx, id)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.localityGen {
		o.logger.Debug("discarding baseline of superseded locality", zap.String("locality", id))
		return
	}
	o.fetchingBaseline = false
	o.cancelBaseline = nil

	if err != nil {
		o.logger.Warn("baseline fetch failed", zap.String("locality", id), zap.Error(err))
		o.lastErr = err.Error()
		o.notifyLocked()
		return
	}

	o.baseline = b
	o.scheduleLocked()
	o.notifyLocked()
}

// invalidateLocked marks the prediction as out of date and reschedules.
func (o *Orchestrator) invalidateLocked() {
	if o.prediction != nil {
		o.stale = true
	}
	o.scheduleLocked()
	o.notifyLocked()
}

// scheduleLocked (re)starts the debounce timer. Any pending timer is stopped
// and any request in flight becomes stale.
func (o *Orchestrator) scheduleLocked() {
	if o.locality == "" || o.baseline == nil {
		return
	}
	o.supersedeLocked()
	o.lastErr = ""

	seq := o.requestSeq
	req := model.PredictionRequest{
		Locality:         o.locality,
		Baseline:         *o.baseline,
		Actions:          o.actions,
		TimeHorizonYears: o.horizon,
	}
	o.timer = o.clock.AfterFunc(o.debounce, func() { o.fire(seq, req) })
}

// supersedeLocked bumps the request sequence so nothing issued so far can be
// applied.
func (o *Orchestrator) supersedeLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.requestSeq++
	if o.cancelPredict != nil {
		o.cancelPredict()
		o.cancelPredict = nil
	}
	o.loading = false
}

func (o *Orchestrator) fire(seq uint64, req model.PredictionRequest) {
	o.mu.Lock()
	defer o.mu.Unlock()
	// A timer stopped too late to prevent the call still lands here.
	if o.closed || seq != o.requestSeq {
		return
	}
	o.timer = nil

	ctx, cancel := context.WithCancel(o.ctx)
	o.cancelPredict = cancel
	o.loading = true
	o.notifyLocked()

	o.wg.Add(1)
	go o.predict(ctx, cancel, seq, req)
}

func (o *Orchestrator) predict(ctx context.Context, cancel context.CancelFunc, seq uint64, req model.PredictionRequest) {
	defer o.wg.Done()
	defer cancel()

	o.logger.Debug("requesting prediction",
		zap.String("locality", req.Locality),
		zap.Int("horizon", req.TimeHorizonYears),
		zap.Uint64("seq", seq))

	res, err := o.client.Predict(ctx, req)
	if err == nil {
		err = res.Validate()
	}

	o.mu.Lock()
	if o.closed || seq != o.requestSeq {
		o.mu.Unlock()
		o.logger.Debug("discarding stale prediction", zap.String("locality", req.Locality), zap.Uint64("seq", seq))
		return
	}
	o.loading = false
	o.cancelPredict = nil

	if err != nil {
		o.lastErr = err.Error()
		o.notifyLocked()
		o.mu.Unlock()
		o.logger.Error("prediction failed", zap.String("locality", req.Locality), zap.Error(err))
		return
	}

	status, _ := OverallStatus(res)
	o.prediction = res
	o.status = status
	o.stale = false
	o.notifyLocked()
	o.mu.Unlock()

	o.logger.Info("prediction applied",
		zap.String("locality", req.Locality),
		zap.Int("horizon", req.TimeHorizonYears),
		zap.String("status", string(status)))

	o.record(req, res, status)
}

func (o *Orchestrator) record(req model.PredictionRequest, res *model.PredictionResult, status Status) {
	if o.recorder == nil {
		return
	}
	final, _ := res.Final()
	err := o.recorder.RecordScenario(o.ctx, repository.Scenario{
		Locality:      req.Locality,
		HorizonYears:  req.TimeHorizonYears,
		Actions:       req.Actions,
		FinalState:    final,
		Explanations:  res.Explanations,
		TreesNeeded:   res.TreesToPlantForHappiness,
		OverallStatus: string(status),
	})
	if err != nil {
		o.logger.Warn("failed to record scenario", zap.String("locality", req.Locality), zap.Error(err))
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		Locality:         o.locality,
		Baseline:         o.baseline,
		Actions:          o.actions,
		Horizon:          o.horizon,
		Prediction:       o.prediction,
		Status:           o.status,
		Loading:          o.loading,
		FetchingBaseline: o.fetchingBaseline,
		Pending:          o.timer != nil,
		Stale:            o.stale,
		LastError:        o.lastErr,
	}
}

func (o *Orchestrator) notifyLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

// ChatContextFrom builds the assistant context from a snapshot.
func ChatContextFrom(s Snapshot) model.ChatContext {
	cc := model.ChatContext{
		Locality: s.Locality,
		Actions:  s.Actions,
	}
	if final, ok := s.Prediction.Final(); ok {
		cc.CurrentStats = &final
		cc.TreesNeeded = s.Prediction.TreesToPlantForHappiness
	}
	return cc
}
