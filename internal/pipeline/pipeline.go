package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/dedup"
	"github.com/wonny/signalhub/internal/extract"
	"github.com/wonny/signalhub/internal/lifecycle"
	"github.com/wonny/signalhub/internal/metrics"
	"github.com/wonny/signalhub/internal/reputation"
	"github.com/wonny/signalhub/internal/scoring"
	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/internal/store"
	"github.com/wonny/signalhub/internal/validate"
)

// signalNamespace 메시지 키 + 자산으로 시그널 id 를 결정적으로 생성
var signalNamespace = uuid.MustParse("6f1c0b2e-5d1a-4c8e-9a57-3f0e2b8d4c11")

// Deps 파이프라인 구성 요소. Tracker/Reputation/Sink 는 필수
type Deps struct {
	Config     *signalconfig.Config
	Registry   *extract.Registry // nil 이면 기본 파서 레지스트리
	Tracker    *lifecycle.Tracker
	Reputation *reputation.Aggregator
	Sink       store.Sink
	Seen       SeenMarker // nil 이면 메모리 seen-set 만 사용
	Metrics    *metrics.Recorder
	Log        zerolog.Logger
}

// Pipeline 추출 → 검증 → 점수 → 중복 → 추적 → 평판 조립
// ⭐ SSOT: 파이프라인 조율은 여기서만
type Pipeline struct {
	cfg        *signalconfig.Config
	configHash string

	registry   *extract.Registry
	validator  *validate.Validator
	scorer     *scoring.Scorer
	grouper    *dedup.Grouper
	tracker    *lifecycle.Tracker
	reputation *reputation.Aggregator
	sink       store.Sink

	seen   *seenSet
	remote SeenMarker
	check  *validator.Validate

	metrics *metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// New wires the pipeline stages over one tuning config
func New(deps Deps) (*Pipeline, error) {
	if deps.Config == nil || deps.Tracker == nil || deps.Reputation == nil || deps.Sink == nil {
		return nil, errors.New("pipeline: config, tracker, reputation and sink are required")
	}

	hash, err := signalconfig.Hash(deps.Config)
	if err != nil {
		return nil, fmt.Errorf("hash pipeline config: %w", err)
	}

	registry := deps.Registry
	if registry == nil {
		registry = extract.NewRegistry(extract.New(deps.Config))
	}

	return &Pipeline{
		cfg:        deps.Config,
		configHash: hash,
		registry:   registry,
		validator:  validate.New(deps.Config),
		scorer:     scoring.New(deps.Config),
		grouper:    dedup.New(deps.Config, deps.Log),
		tracker:    deps.Tracker,
		reputation: deps.Reputation,
		sink:       deps.Sink,
		seen:       newSeenSet(),
		remote:     deps.Seen,
		check:      validator.New(),
		metrics:    deps.Metrics,
		log:        deps.Log.With().Str("component", "pipeline").Logger(),
		now:        time.Now,
	}, nil
}

// ConfigHash 점수 계산에 사용된 설정 해시
func (p *Pipeline) ConfigHash() string { return p.configHash }

// Tracker 가격 추적기
func (p *Pipeline) Tracker() *lifecycle.Tracker { return p.tracker }

// Reputation 평판 집계기
func (p *Pipeline) Reputation() *reputation.Aggregator { return p.reputation }

// Groups 열린 합의 그룹 스냅샷
func (p *Pipeline) Groups() []*contracts.SignalGroup { return p.grouper.Groups() }

// === Ingestion ===

// Ingest processes one raw message end to end. Never returns an error:
// every failure becomes part of the result
func (p *Pipeline) Ingest(ctx context.Context, msg contracts.RawMessage) MessageResult {
	start := time.Now()
	res := MessageResult{Key: msg.IdempotencyKey()}

	if err := p.check.Struct(msg); err != nil {
		res.Status = StatusInvalid
		res.Detail = err.Error()
		p.metrics.RecordMessage(string(res.Status))
		p.log.Debug().Err(err).Str("key", res.Key).Msg("invalid raw message")
		return res
	}

	if !p.markSeen(ctx, res.Key) {
		res.Status = StatusReplayed
		p.metrics.RecordMessage(string(res.Status))
		p.log.Debug().Str("key", res.Key).Msg("message already processed")
		return res
	}

	extracted := p.registry.Extract(msg)
	p.metrics.ObserveStage("extract", time.Since(start).Seconds())
	for _, d := range extracted.Dropped {
		p.metrics.RecordExtractionMiss(string(d.Reason))
	}
	if len(extracted.Drafts) == 0 {
		if len(extracted.Dropped) == 0 {
			p.metrics.RecordExtractionMiss("no_asset")
		}
		res.Status = StatusNoSignal
		p.metrics.RecordMessage(string(res.Status))
		return res
	}

	for _, d := range extracted.Drafts {
		res.Candidates = append(res.Candidates, p.candidate(ctx, msg, res.Key, d))
	}
	res.Status = summarize(res.Candidates)

	// 저장 실패만 있었으면 재전송 시 다시 처리
	if res.Status == StatusFailed {
		p.forgetSeen(ctx, res.Key)
	}

	p.metrics.RecordMessage(string(res.Status))
	p.metrics.ObserveStage("ingest", time.Since(start).Seconds())
	return res
}

func (p *Pipeline) markSeen(ctx context.Context, key string) bool {
	if !p.seen.mark(key, p.now()) {
		return false
	}
	if p.remote == nil {
		return true
	}

	fresh, err := p.remote.MarkSeen(ctx, key)
	if err != nil {
		// 공유 seen-set 장애 시 메모리 판단을 따름
		p.log.Warn().Err(err).Str("key", key).Msg("shared seen-set unavailable")
		return true
	}
	return fresh
}

func (p *Pipeline) forgetSeen(ctx context.Context, key string) {
	p.seen.forget(key)
	if p.remote == nil {
		return
	}
	if err := p.remote.Forget(ctx, key); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("shared seen-set key not released")
	}
}

// candidate validates, scores, groups and starts tracking one draft
func (p *Pipeline) candidate(ctx context.Context, msg contracts.RawMessage, key string, d contracts.Draft) Candidate {
	c := Candidate{Asset: d.Asset, Direction: d.Direction}

	verdict := p.validator.Validate(d)
	if !verdict.Accepted {
		c.Status = StatusRejected
		c.Reason = verdict.Reason
		c.Detail = verdict.Detail
		p.metrics.RecordRejection(string(verdict.Reason))
		p.log.Debug().
			Str("key", key).
			Str("asset", d.Asset).
			Str("reason", string(verdict.Reason)).
			Str("detail", verdict.Detail).
			Msg("draft rejected")
		return c
	}

	sig := p.canonical(msg, key, d, verdict)
	c.SignalID = sig.ID
	c.Confidence = sig.Confidence
	p.metrics.ObserveConfidence(sig.Confidence)

	outcome := p.grouper.Add(sig)
	c.MatchKind = outcome.Kind
	if outcome.Group != nil {
		sig.GroupID = outcome.Group.ID
		c.GroupID = outcome.Group.ID
	}
	p.metrics.RecordDedup(string(outcome.Kind))

	if err := p.sink.SaveSignal(ctx, sig); err != nil {
		c.Status = StatusFailed
		c.Detail = err.Error()
		p.log.Error().Err(err).Str("signal_id", sig.ID).Msg("signal not persisted")
		// 저장되지 않은 시그널이 합의 점수에 남지 않도록 윈도우에서 제거
		p.ungroup(ctx, sig)
		return c
	}
	p.saveGroup(ctx, outcome)

	if err := p.track(ctx, sig, outcome); err != nil {
		c.Status = StatusFailed
		c.Detail = err.Error()
		p.log.Error().Err(err).Str("signal_id", sig.ID).Msg("signal not tracked")
		return c
	}

	c.Status = StatusAccepted
	if outcome.Merged() {
		c.Status = StatusMerged
	}
	c.Signal = sig

	p.log.Info().
		Str("signal_id", sig.ID).
		Str("source_id", sig.SourceID).
		Str("asset", sig.Asset).
		Str("direction", string(sig.Direction)).
		Float64("confidence", sig.Confidence).
		Str("status", string(c.Status)).
		Str("group_id", sig.GroupID).
		Msg("signal ingested")
	return c
}

// canonical builds the scored signal record for an accepted draft
func (p *Pipeline) canonical(msg contracts.RawMessage, key string, d contracts.Draft, verdict contracts.ValidationResult) *contracts.CanonicalSignal {
	breakdown := p.scorer.Score(d, scoring.RankFor(p.reputation, msg.SourceID))

	return &contracts.CanonicalSignal{
		ID:                   uuid.NewSHA1(signalNamespace, []byte(key+"#"+d.Asset)).String(),
		Draft:                d,
		Platform:             msg.Platform,
		SourceID:             msg.SourceID,
		Author:               msg.Author,
		MessageID:            msg.MessageID,
		RawText:              msg.Text,
		ExtractionConfidence: breakdown.Extraction,
		Confidence:           breakdown.Final,
		Score:                breakdown,
		ConfigHash:           p.configHash,
		Validation:           verdict,
		State:                contracts.StatePending,
		CreatedAt:            msg.Timestamp,
		ExpiresAt:            lifecycle.ExpiryFor(msg.Timestamp, p.cfg.Lifecycle.DefaultExpiry),
	}
}

// track joins the group's tracked unit when there is one, otherwise starts a new unit
func (p *Pipeline) track(ctx context.Context, sig *contracts.CanonicalSignal, outcome dedup.Outcome) error {
	if outcome.LeaderID != "" && p.tracker.Attach(ctx, outcome.LeaderID, sig) {
		return nil
	}
	if err := p.tracker.Track(sig); err != nil && !errors.Is(err, lifecycle.ErrAlreadyResolved) {
		return err
	}
	return nil
}

func (p *Pipeline) saveGroup(ctx context.Context, outcome dedup.Outcome) {
	if outcome.Group == nil {
		return
	}
	if err := p.sink.SaveGroup(ctx, outcome.Group); err != nil {
		p.log.Error().Err(err).Str("group_id", outcome.Group.ID).Msg("group not persisted")
	}
	for _, id := range outcome.Absorbed {
		if err := p.sink.DeleteGroup(ctx, id); err != nil {
			p.log.Error().Err(err).Str("group_id", id).Msg("absorbed group not removed")
		}
	}
	if outcome.Strong {
		p.advise(ctx, contracts.NewAdvisory(contracts.AdvisoryStrongConsensus, outcome.Group.ID, outcome.Group.UpdatedAt))
	}
}

func (p *Pipeline) ungroup(ctx context.Context, sig *contracts.CanonicalSignal) {
	removal := p.grouper.Remove(sig)
	for _, g := range removal.Groups {
		if err := p.sink.SaveGroup(ctx, g); err != nil {
			p.log.Error().Err(err).Str("group_id", g.ID).Msg("group not persisted")
		}
	}
	for _, id := range removal.Dissolved {
		if err := p.sink.DeleteGroup(ctx, id); err != nil {
			p.log.Error().Err(err).Str("group_id", id).Msg("dissolved group not removed")
		}
	}
}

// === Resolution side ===

// HandleResolution folds a durable resolution into the source's reputation
func (p *Pipeline) HandleResolution(ctx context.Context, res contracts.Resolution) contracts.SourceReputation {
	upd := p.reputation.Record(res)
	if err := p.sink.SaveReputation(ctx, upd.Reputation); err != nil {
		p.log.Error().Err(err).Str("source_id", res.SourceID).Msg("reputation not persisted")
	}
	if upd.Advisory != nil {
		p.advise(ctx, *upd.Advisory)
	}
	return upd.Reputation
}

func (p *Pipeline) advise(ctx context.Context, a contracts.Advisory) {
	p.metrics.RecordAdvisory(string(a.Kind))
	if err := p.sink.SaveAdvisory(ctx, a); err != nil {
		p.log.Error().Err(err).Str("kind", string(a.Kind)).Msg("advisory not persisted")
	}
	p.log.Info().Str("kind", string(a.Kind)).Str("subject", a.Subject).Msg(a.Message)
}

// Drain processes every pending resolution and tracker advisory without blocking
// 리플레이처럼 틱을 직접 주입하는 경우 각 틱 뒤에 호출
func (p *Pipeline) Drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case res := <-p.tracker.Resolutions():
			p.HandleResolution(ctx, res)
			n++
		case a := <-p.tracker.Advisories():
			p.advise(ctx, a)
		default:
			return n
		}
	}
}

// Start launches the tracker pollers plus the resolution and advisory workers
func (p *Pipeline) Start(ctx context.Context) {
	p.tracker.Start(ctx)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case res := <-p.tracker.Resolutions():
				p.HandleResolution(ctx, res)
			}
		}
	}()
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-p.tracker.Advisories():
				p.advise(ctx, a)
			}
		}
	}()

	p.log.Info().Str("config_hash", p.configHash).Msg("pipeline started")
}

// Stop waits for the workers (after ctx is cancelled) and stops the tracker
func (p *Pipeline) Stop() {
	p.tracker.Stop()
	p.wg.Wait()
	p.log.Info().Msg("pipeline stopped")
}

// Run ingests messages with n workers until msgs is closed or ctx is done
func (p *Pipeline) Run(ctx context.Context, msgs <-chan contracts.RawMessage, workers int) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					p.Ingest(ctx, msg)
				}
			}
		}()
	}
	wg.Wait()
}

// === Maintenance ===

// Prune ages out the dedup window and persists groups whose window closed
func (p *Pipeline) Prune(ctx context.Context, now time.Time) int {
	closed := p.grouper.Prune(now)
	for _, g := range closed {
		if err := p.sink.SaveGroup(ctx, g); err != nil {
			p.log.Error().Err(err).Str("group_id", g.ID).Msg("closed group not persisted")
		}
	}
	return len(closed)
}

// CompactSeen forgets idempotency keys recorded before cutoff
func (p *Pipeline) CompactSeen(cutoff time.Time) int {
	return p.seen.compact(cutoff)
}

// Stats 운영 조회용 요약
type Stats struct {
	SeenKeys   int `json:"seen_keys"`
	WindowSize int `json:"window_size"`
	OpenGroups int `json:"open_groups"`
	Tracked    int `json:"tracked"`
}

// Stats returns a point-in-time summary
func (p *Pipeline) Stats() Stats {
	return Stats{
		SeenKeys:   p.seen.len(),
		WindowSize: p.grouper.WindowSize(),
		OpenGroups: len(p.grouper.Groups()),
		Tracked:    p.tracker.Tracked(),
	}
}

// TrackerStatus 자산별 추적 상태 (/v1/feeds)
func (p *Pipeline) TrackerStatus() []lifecycle.AssetStatus {
	return p.tracker.Status()
}
