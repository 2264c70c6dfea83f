package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/metrics"
	"github.com/wonny/signalhub/internal/realtime"
	"github.com/wonny/signalhub/internal/signalconfig"
)

var (
	ErrNotTracked      = errors.New("signal not tracked")
	ErrAlreadyResolved = errors.New("signal already resolved")
)

// Store 전이 영속화. 메모리 상태에 반영하기 전에 호출된다
type Store interface {
	SaveTransition(ctx context.Context, sig *contracts.CanonicalSignal, tr contracts.Transition) error
}

// Options 폴링 설정 (pkg/config FEED_*)
type Options struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// unit 추적 단위: 그룹의 첫 시그널(leader) + 병합된 멤버
// 멤버는 leader 의 상태를 공유하고 수익률만 각자 계산
type unit struct {
	leader    *contracts.CanonicalSignal
	followers []*contracts.CanonicalSignal
}

func (u *unit) members() []*contracts.CanonicalSignal {
	out := make([]*contracts.CanonicalSignal, 0, 1+len(u.followers))
	out = append(out, u.leader)
	return append(out, u.followers...)
}

// assetState 자산별 폴러 상태
type assetState struct {
	asset string

	mu       sync.Mutex
	units    map[string]*unit // leader id -> unit
	lastTick contracts.PriceTick
	failures int
	degraded bool
	running  bool
	cancel   context.CancelFunc
}

type unitRef struct {
	asset  string
	leader string
}

// AssetStatus 자산별 추적 상태 (/v1/feeds)
type AssetStatus struct {
	Asset    string              `json:"asset"`
	Signals  int                 `json:"signals"`
	Failures int                 `json:"consecutive_failures"`
	Degraded bool                `json:"degraded"`
	LastTick contracts.PriceTick `json:"last_tick"`
	Polling  bool                `json:"polling"`
}

// Tracker 가격 생애주기 추적기
// ⭐ SSOT: CanonicalSignal.State 는 Tracker 만 변경
// 시세 조회는 시그널 단위가 아니라 자산 단위 폴러가 수행
type Tracker struct {
	feed    realtime.PriceFeed
	store   Store
	cfg     signalconfig.Lifecycle
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Recorder
	now     func() time.Time

	mu       sync.Mutex
	assets   map[string]*assetState
	index    map[string]unitRef // signal id -> unit
	resolved map[string]contracts.LifecycleState
	tracked  int
	runCtx   context.Context
	wg       sync.WaitGroup

	resolutions chan contracts.Resolution
	advisories  chan contracts.Advisory
}

// New creates a tracker; store and rec may be nil
func New(feed realtime.PriceFeed, store Store, cfg signalconfig.Lifecycle, opts Options, rec *metrics.Recorder, log zerolog.Logger) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	return &Tracker{
		feed:        feed,
		store:       store,
		cfg:         cfg,
		opts:        opts,
		log:         log.With().Str("component", "lifecycle.tracker").Logger(),
		metrics:     rec,
		now:         time.Now,
		assets:      make(map[string]*assetState),
		index:       make(map[string]unitRef),
		resolved:    make(map[string]contracts.LifecycleState),
		resolutions: make(chan contracts.Resolution, 1024),
		advisories:  make(chan contracts.Advisory, 256),
	}
}

// Resolutions 종결 이벤트 (평판 집계기 입력)
func (t *Tracker) Resolutions() <-chan contracts.Resolution { return t.resolutions }

// Advisories feed degraded/recovered 알림
func (t *Tracker) Advisories() <-chan contracts.Advisory { return t.advisories }

// === Registration ===

// Track starts tracking a PENDING signal as the leader of a new unit
func (t *Tracker) Track(sig *contracts.CanonicalSignal) error {
	if sig.State == "" {
		sig.State = contracts.StatePending
	}
	if sig.State.IsTerminal() {
		return fmt.Errorf("track %s: %w", sig.ID, ErrAlreadyResolved)
	}

	leader := sig.Clone()
	if leader.ExpiresAt == nil {
		leader.ExpiresAt = ExpiryFor(leader.CreatedAt, t.cfg.DefaultExpiry)
	}

	t.mu.Lock()
	if _, ok := t.index[sig.ID]; ok {
		t.mu.Unlock()
		return nil
	}
	if _, ok := t.resolved[sig.ID]; ok {
		t.mu.Unlock()
		return fmt.Errorf("track %s: %w", sig.ID, ErrAlreadyResolved)
	}
	st := t.stateLocked(sig.Asset)
	runCtx := t.runCtx
	t.mu.Unlock()

	st.mu.Lock()
	st.units[leader.ID] = &unit{leader: leader}
	t.mu.Lock()
	t.index[leader.ID] = unitRef{asset: leader.Asset, leader: leader.ID}
	t.tracked++
	tracked := t.tracked
	t.mu.Unlock()
	if runCtx != nil && !st.running {
		t.startPoller(runCtx, st)
	}
	n := len(st.units)
	st.mu.Unlock()

	t.metrics.SetTracked(tracked)
	t.watch(leader.Asset, n)
	t.log.Debug().Str("signal_id", leader.ID).Str("asset", leader.Asset).Msg("tracking started")
	return nil
}

// Attach adds a merged signal to the unit led (directly or transitively) by leaderID.
// unit 의 가격 기준은 그룹 primary 가 아니라 가장 먼저 들어온 멤버: primary 는 이후 합류로
// 바뀔 수 있지만 이미 진행 중인 unit 의 진입/목표/손절 기준은 바꾸지 않는다
// 대상 unit 이 없거나 이미 종결되었으면 false: 호출 측이 Track 으로 새 unit 을 만든다
func (t *Tracker) Attach(ctx context.Context, leaderID string, sig *contracts.CanonicalSignal) bool {
	t.mu.Lock()
	ref, ok := t.index[leaderID]
	if _, dup := t.index[sig.ID]; dup {
		t.mu.Unlock()
		return true
	}
	var st *assetState
	if ok {
		st = t.assets[ref.asset]
	}
	t.mu.Unlock()
	if !ok || st == nil || ref.asset != sig.Asset {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	u := st.units[ref.leader]
	if u == nil || u.leader.State.IsTerminal() {
		return false
	}

	follower := sig.Clone()
	follower.State = contracts.StatePending

	// 이미 진입한 unit 에 합류하면 현재 가격으로 활성화
	if u.leader.State == contracts.StateActive {
		price, at := st.lastTick.Price, st.lastTick.Timestamp
		if !st.lastTick.Valid() {
			price, at = *u.leader.ActivationPrice, *u.leader.ActivatedAt
		}
		tr := contracts.Transition{
			SignalID: follower.ID,
			From:     contracts.StatePending,
			To:       contracts.StateActive,
			Price:    price,
			At:       at,
			Reason:   "joined active group",
		}
		updated, err := t.persist(ctx, follower, tr)
		if err != nil {
			t.log.Warn().Err(err).Str("signal_id", follower.ID).Msg("attach activation not persisted")
			return false
		}
		follower = updated
		t.metrics.RecordTransition(string(tr.To))
	}

	u.followers = append(u.followers, follower)

	t.mu.Lock()
	t.index[follower.ID] = ref
	t.tracked++
	tracked := t.tracked
	t.mu.Unlock()

	t.metrics.SetTracked(tracked)
	return true
}

// Cancel moves a non-terminal signal to CANCELLED at the last observed price
func (t *Tracker) Cancel(ctx context.Context, id, reason string) error {
	t.mu.Lock()
	ref, ok := t.index[id]
	_, done := t.resolved[id]
	var st *assetState
	if ok {
		st = t.assets[ref.asset]
	}
	t.mu.Unlock()

	if !ok || st == nil {
		if done {
			return fmt.Errorf("cancel %s: %w", id, ErrAlreadyResolved)
		}
		return fmt.Errorf("cancel %s: %w", id, ErrNotTracked)
	}

	st.mu.Lock()
	u := st.units[ref.leader]
	if u == nil {
		st.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, ErrAlreadyResolved)
	}

	var member *contracts.CanonicalSignal
	for _, m := range u.members() {
		if m.ID == id {
			member = m
		}
	}
	if member == nil {
		st.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, ErrNotTracked)
	}

	price := st.lastTick.Price
	if !st.lastTick.Valid() {
		price, _ = member.EntryReference()
	}
	tr := contracts.Transition{
		SignalID: id,
		From:     member.State,
		To:       contracts.StateCancelled,
		Price:    price,
		At:       t.now(),
		Reason:   reason,
	}
	updated, err := t.persist(ctx, member, tr)
	if err != nil {
		st.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, err)
	}

	t.detach(st, u, id)
	t.mu.Lock()
	delete(t.index, id)
	t.resolved[id] = contracts.StateCancelled
	t.tracked--
	tracked := t.tracked
	t.mu.Unlock()

	remaining := len(st.units)
	if remaining == 0 {
		st.stopPoller()
	}
	st.mu.Unlock()

	t.metrics.RecordTransition(string(tr.To))
	t.metrics.SetTracked(tracked)
	t.watch(ref.asset, remaining)
	t.log.Info().Str("signal_id", id).Str("reason", reason).Msg("signal cancelled")
	t.publish(ctx, []contracts.Resolution{ResolutionOf(updated)})
	return nil
}

// detach removes a member from its unit, promoting the earliest follower when the leader leaves
// st.mu must be held
func (t *Tracker) detach(st *assetState, u *unit, id string) {
	if u.leader.ID != id {
		for i, f := range u.followers {
			if f.ID == id {
				u.followers = append(u.followers[:i], u.followers[i+1:]...)
				break
			}
		}
		return
	}

	delete(st.units, u.leader.ID)
	if len(u.followers) == 0 {
		return
	}

	next := &unit{leader: u.followers[0], followers: u.followers[1:]}
	st.units[next.leader.ID] = next

	t.mu.Lock()
	for _, m := range next.members() {
		t.index[m.ID] = unitRef{asset: st.asset, leader: next.leader.ID}
	}
	t.mu.Unlock()
}

// === Tick processing ===

// ProcessTick evaluates a tick for every unit on its asset
// 폴러와 리플레이가 공통으로 사용. 시각이 역행하는 틱은 무시
func (t *Tracker) ProcessTick(ctx context.Context, tick contracts.PriceTick) {
	if !tick.Valid() {
		return
	}

	t.mu.Lock()
	st := t.assets[tick.Asset]
	t.mu.Unlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	if st.lastTick.Valid() && tick.Timestamp.Before(st.lastTick.Timestamp) {
		st.mu.Unlock()
		t.log.Debug().Str("asset", tick.Asset).Time("tick", tick.Timestamp).Msg("out of order tick ignored")
		return
	}
	st.lastTick = tick

	var resolutions []contracts.Resolution
	for _, u := range st.sortedUnits() {
		res, done := t.advanceUnit(ctx, u, tick)
		if !done {
			continue
		}
		resolutions = append(resolutions, res...)
		t.retire(st, u)
	}

	remaining := len(st.units)
	if remaining == 0 {
		st.stopPoller()
	}
	st.mu.Unlock()

	if len(resolutions) > 0 {
		t.watch(tick.Asset, remaining)
	}
	t.publish(ctx, resolutions)
}

// advanceUnit applies the leader's transitions to every member
// 영속화 실패 시 해당 전이부터 중단 (다음 틱에서 재평가)
func (t *Tracker) advanceUnit(ctx context.Context, u *unit, tick contracts.PriceTick) ([]contracts.Resolution, bool) {
	for _, tr := range Advance(u.leader, tick, t.cfg.EntryTolerance) {
		if err := t.commit(ctx, u, tr); err != nil {
			t.log.Warn().Err(err).Str("signal_id", u.leader.ID).Str("to", string(tr.To)).Msg("transition not persisted, retrying next tick")
			return nil, false
		}
	}

	if !u.leader.State.IsTerminal() {
		return nil, false
	}

	members := u.members()
	out := make([]contracts.Resolution, 0, len(members))
	for _, m := range members {
		out = append(out, ResolutionOf(m))
	}

	t.log.Info().
		Str("signal_id", u.leader.ID).
		Str("asset", u.leader.Asset).
		Str("state", string(u.leader.State)).
		Float64("price", *u.leader.ResolutionPrice).
		Int("members", len(members)).
		Msg("signal resolved")
	return out, true
}

// commit persists the transition for every member, then applies it in memory
func (t *Tracker) commit(ctx context.Context, u *unit, tr contracts.Transition) error {
	members := u.members()
	updated := make([]*contracts.CanonicalSignal, len(members))

	for i, m := range members {
		mtr := tr
		mtr.SignalID = m.ID
		mtr.From = m.State
		next, err := t.persist(ctx, m, mtr)
		if err != nil {
			return err
		}
		updated[i] = next
	}

	u.leader = updated[0]
	copy(u.followers, updated[1:])
	for range updated {
		t.metrics.RecordTransition(string(tr.To))
	}
	return nil
}

// persist applies tr to a copy of sig and stores it; sig itself is untouched
func (t *Tracker) persist(ctx context.Context, sig *contracts.CanonicalSignal, tr contracts.Transition) (*contracts.CanonicalSignal, error) {
	next := sig.Clone()
	Apply(next, tr)

	if t.store != nil {
		if err := t.store.SaveTransition(ctx, next, tr); err != nil {
			return nil, fmt.Errorf("save transition %s %s->%s: %w", tr.SignalID, tr.From, tr.To, err)
		}
	}
	return next, nil
}

// retire removes a resolved unit; st.mu must be held
func (t *Tracker) retire(st *assetState, u *unit) {
	delete(st.units, u.leader.ID)

	t.mu.Lock()
	for _, m := range u.members() {
		delete(t.index, m.ID)
		t.resolved[m.ID] = m.State
		t.tracked--
	}
	tracked := t.tracked
	t.mu.Unlock()

	t.metrics.SetTracked(tracked)
}

func (t *Tracker) publish(ctx context.Context, resolutions []contracts.Resolution) {
	for _, r := range resolutions {
		select {
		case t.resolutions <- r:
		case <-ctx.Done():
			t.log.Warn().Str("signal_id", r.SignalID).Msg("resolution not delivered, context done")
			return
		}
	}
}

func (t *Tracker) advise(a contracts.Advisory) {
	t.metrics.RecordAdvisory(string(a.Kind))
	select {
	case t.advisories <- a:
	default:
		t.log.Warn().Str("kind", string(a.Kind)).Str("subject", a.Subject).Msg("advisory buffer full, dropped")
	}
}

func (t *Tracker) watch(asset string, openSignals int) {
	if w, ok := t.feed.(realtime.Watcher); ok {
		w.Watch(asset, openSignals)
	}
}

// === Pollers ===

// Start launches one poller per asset with open signals
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	t.runCtx = ctx
	states := make([]*assetState, 0, len(t.assets))
	for _, st := range t.assets {
		states = append(states, st)
	}
	t.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		if len(st.units) > 0 && !st.running {
			t.startPoller(ctx, st)
		}
		st.mu.Unlock()
	}

	t.log.Info().
		Dur("interval", t.opts.PollInterval).
		Dur("timeout", t.opts.FetchTimeout).
		Int("assets", len(states)).
		Msg("tracker started")
}

// Stop cancels every poller and waits for them to exit
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.runCtx = nil
	states := make([]*assetState, 0, len(t.assets))
	for _, st := range t.assets {
		states = append(states, st)
	}
	t.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		st.stopPoller()
		st.mu.Unlock()
	}
	t.wg.Wait()
	t.log.Info().Msg("tracker stopped")
}

// startPoller st.mu must be held
func (t *Tracker) startPoller(parent context.Context, st *assetState) {
	ctx, cancel := context.WithCancel(parent)
	st.cancel = cancel
	st.running = true

	t.wg.Add(1)
	go t.poll(ctx, st)
}

// stopPoller st.mu must be held
func (st *assetState) stopPoller() {
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.running = false
}

func (t *Tracker) poll(ctx context.Context, st *assetState) {
	defer t.wg.Done()

	t.log.Debug().Str("asset", st.asset).Msg("poller started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Debug().Str("asset", st.asset).Msg("poller stopped")
			return
		case <-timer.C:
		}

		next := t.opts.PollInterval
		if failures := t.pollOnce(ctx, st.asset); failures > 0 {
			next = t.backoff(failures)
		}
		timer.Reset(next)
	}
}

// pollOnce fetches one price and returns the consecutive failure count
// 조회 실패/오래된 틱이면 상태를 전혀 바꾸지 않고 건너뜀
func (t *Tracker) pollOnce(ctx context.Context, asset string) int {
	fetchCtx, cancel := context.WithTimeout(ctx, t.opts.FetchTimeout)
	tick, err := t.feed.CurrentPrice(fetchCtx, asset)
	cancel()

	if err == nil && !tick.Valid() {
		err = fmt.Errorf("%w: invalid tick", realtime.ErrUnavailable)
	}
	if err == nil && t.now().Sub(tick.Timestamp) > t.cfg.StaleAfter {
		err = fmt.Errorf("%w: stale tick from %s (%s old)", realtime.ErrUnavailable, tick.Source, t.now().Sub(tick.Timestamp).Round(time.Second))
	}
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		return t.recordFailure(asset, err)
	}

	t.recordSuccess(asset)
	t.ProcessTick(ctx, tick)
	return 0
}

func (t *Tracker) recordFailure(asset string, err error) int {
	st := t.state(asset)

	st.mu.Lock()
	st.failures++
	n := st.failures
	becameDegraded := !st.degraded && n >= t.cfg.DegradedAfter
	if becameDegraded {
		st.degraded = true
	}
	st.mu.Unlock()

	t.metrics.RecordFeedFailure(asset)
	if !becameDegraded {
		t.log.Debug().Err(err).Str("asset", asset).Int("failures", n).Msg("price unavailable, tick skipped")
		return n
	}

	t.log.Warn().Err(err).Str("asset", asset).Int("failures", n).Msg("price feed degraded")
	t.metrics.SetDegraded(asset, true)
	t.advise(contracts.NewAdvisory(contracts.AdvisoryFeedDegraded, asset, t.now()))
	return n
}

func (t *Tracker) recordSuccess(asset string) {
	st := t.state(asset)

	st.mu.Lock()
	recovered := st.degraded
	st.failures = 0
	st.degraded = false
	st.mu.Unlock()

	if recovered {
		t.log.Info().Str("asset", asset).Msg("price feed recovered")
		t.metrics.SetDegraded(asset, false)
		t.advise(contracts.NewAdvisory(contracts.AdvisoryFeedRecovered, asset, t.now()))
	}
}

// backoff capped exponential delay after n consecutive failures
func (t *Tracker) backoff(n int) time.Duration {
	delay := t.opts.PollInterval
	for i := 1; i < n && delay < t.cfg.BackoffMax; i++ {
		delay *= 2
	}
	if delay > t.cfg.BackoffMax && t.cfg.BackoffMax >= t.opts.PollInterval {
		delay = t.cfg.BackoffMax
	}
	return delay
}

// === Snapshots ===

// Signal returns a copy of a tracked signal
func (t *Tracker) Signal(id string) (*contracts.CanonicalSignal, bool) {
	t.mu.Lock()
	ref, ok := t.index[id]
	st := t.assets[ref.asset]
	t.mu.Unlock()
	if !ok || st == nil {
		return nil, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if u := st.units[ref.leader]; u != nil {
		for _, m := range u.members() {
			if m.ID == id {
				return m.Clone(), true
			}
		}
	}
	return nil, false
}

// Resolved reports the terminal state of a signal this tracker resolved
func (t *Tracker) Resolved(id string) (contracts.LifecycleState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.resolved[id]
	return s, ok
}

// Tracked returns the number of open signals
func (t *Tracker) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracked
}

// Degraded reports whether tracking for asset is degraded
func (t *Tracker) Degraded(asset string) bool {
	t.mu.Lock()
	st := t.assets[asset]
	t.mu.Unlock()
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.degraded
}

// Status returns per-asset tracking status sorted by asset
func (t *Tracker) Status() []AssetStatus {
	t.mu.Lock()
	states := make([]*assetState, 0, len(t.assets))
	for _, st := range t.assets {
		states = append(states, st)
	}
	t.mu.Unlock()

	out := make([]AssetStatus, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		signals := 0
		for _, u := range st.units {
			signals += 1 + len(u.followers)
		}
		out = append(out, AssetStatus{
			Asset:    st.asset,
			Signals:  signals,
			Failures: st.failures,
			Degraded: st.degraded,
			LastTick: st.lastTick,
			Polling:  st.running,
		})
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// state returns (creating if needed) the per-asset state
func (t *Tracker) state(asset string) *assetState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(asset)
}

// stateLocked t.mu must be held
func (t *Tracker) stateLocked(asset string) *assetState {
	st, ok := t.assets[asset]
	if !ok {
		st = &assetState{asset: asset, units: make(map[string]*unit)}
		t.assets[asset] = st
	}
	return st
}

// sortedUnits deterministic processing order; st.mu must be held
func (st *assetState) sortedUnits() []*unit {
	out := make([]*unit, 0, len(st.units))
	for _, u := range st.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].leader, out[j].leader
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
