package reputation

import (
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

// ErrInsufficientHistory 랭킹 최소 건수 미달 (에러가 아니라 랭킹 제외 사유)
var ErrInsufficientHistory = errors.New("insufficient resolved history")

// outcome 진입 후 종결된 시그널 하나의 결과
type outcome struct {
	ret     float64
	success bool
}

// sourceState 소스별 누적 상태. mu 로 소스 단위 직렬화
type sourceState struct {
	mu        sync.Mutex
	history   []outcome // 최근 HistoryLimit 건, 오래된 순
	total     int
	successes int
	voided    int
	category  contracts.ReputationCategory
}

// Update Record 결과
type Update struct {
	Reputation contracts.SourceReputation
	Advisory   *contracts.Advisory // 신뢰도 하락 카테고리로 이동했을 때만
}

// Aggregator 소스 평판 집계기
// ⭐ SSOT: SourceReputation 의 유일한 writer. 읽기는 copy-on-write 스냅샷
type Aggregator struct {
	cfg signalconfig.Reputation
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	sources map[string]*sourceState

	pubMu    sync.Mutex
	snapshot atomic.Pointer[map[string]contracts.SourceReputation]
}

// New 새 집계기 생성
func New(cfg signalconfig.Reputation, log zerolog.Logger) *Aggregator {
	a := &Aggregator{
		cfg:     cfg,
		log:     log.With().Str("component", "reputation.aggregator").Logger(),
		now:     time.Now,
		sources: make(map[string]*sourceState),
	}
	empty := make(map[string]contracts.SourceReputation)
	a.snapshot.Store(&empty)
	return a
}

// Record folds one resolution into its source's statistics
// 진입하지 않은 종결(PENDING 에서 만료/취소)은 Voided 만 증가
func (a *Aggregator) Record(res contracts.Resolution) Update {
	st := a.source(res.SourceID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if !res.Entered {
		st.voided++
	} else {
		st.total++
		if res.Success() {
			st.successes++
		}
		st.history = append(st.history, outcome{ret: res.ReturnPct, success: res.Success()})
		if limit := a.cfg.HistoryLimit; limit > 0 && len(st.history) > limit {
			st.history = append(st.history[:0:0], st.history[len(st.history)-limit:]...)
		}
	}

	rep := a.compute(res.SourceID, st)
	prev := st.category
	st.category = rep.Category
	a.publish(rep)

	upd := Update{Reputation: rep}
	if rep.Category.Degraded() && !prev.Degraded() {
		adv := contracts.NewAdvisory(contracts.AdvisoryReputationDegraded, res.SourceID, rep.LastUpdated)
		upd.Advisory = &adv
		a.log.Warn().
			Str("source_id", res.SourceID).
			Str("category", string(rep.Category)).
			Float64("success_rate", rep.SuccessRate).
			Float64("drawdown", rep.Drawdown).
			Msg("source reputation degraded")
	}

	a.log.Debug().
		Str("source_id", res.SourceID).
		Str("final_state", string(res.FinalState)).
		Int("resolved", rep.TotalResolved).
		Float64("rank", rep.CompositeRank).
		Msg("reputation updated")
	return upd
}

// compute st.mu must be held
func (a *Aggregator) compute(sourceID string, st *sourceState) contracts.SourceReputation {
	rep := contracts.SourceReputation{
		SourceID:      sourceID,
		TotalResolved: st.total,
		Successes:     st.successes,
		Voided:        st.voided,
		Eligible:      st.total >= a.cfg.MinResolved,
		LastUpdated:   a.now(),
	}
	if st.total > 0 {
		rep.SuccessRate = float64(st.successes) / float64(st.total)
	}

	returns := make([]float64, len(st.history))
	for i, o := range st.history {
		returns[i] = o.ret
	}
	if len(returns) > 0 {
		rep.AvgReturn, _ = stats.Mean(returns)
		if sd, err := stats.StandardDeviation(returns); err == nil && sd > 0 {
			rep.RiskAdjusted = rep.AvgReturn / sd
		}
		rep.Drawdown = MaxDrawdown(returns)
	}

	rep.CompositeRank = Composite(a.cfg, rep)
	rep.Category = Categorize(a.cfg, rep)
	return rep
}

// MaxDrawdown 누적 수익 곡선의 최대 고점 대비 낙폭 (곡선은 0 에서 시작)
func MaxDrawdown(returns []float64) float64 {
	var cum, peak, dd float64
	for _, r := range returns {
		cum += r
		if cum > peak {
			peak = cum
		}
		if peak-cum > dd {
			dd = peak - cum
		}
	}
	return dd
}

// Composite 가중 합산 랭크 (0~1)
func Composite(cfg signalconfig.Reputation, rep contracts.SourceReputation) float64 {
	score := cfg.SuccessWeight*rep.SuccessRate +
		cfg.ReturnWeight*normalize(rep.AvgReturn, cfg.ReturnScale) +
		cfg.RiskAdjWeight*normalize(rep.RiskAdjusted, cfg.RiskAdjScale) +
		cfg.DrawdownWeight*(1-math.Min(1, safeDiv(rep.Drawdown, cfg.DrawdownScale)))
	return math.Max(0, math.Min(1, score))
}

// Categorize 임계값 규칙 (위에서부터 첫 번째 일치)
func Categorize(cfg signalconfig.Reputation, rep contracts.SourceReputation) contracts.ReputationCategory {
	switch {
	case rep.TotalResolved < cfg.MinResolved:
		return contracts.CategoryNewcomer
	case rep.Drawdown >= cfg.HighRiskDrawdown:
		return contracts.CategoryHighRisk
	case rep.SuccessRate < cfg.UnderperformSuccess || rep.AvgReturn < 0:
		return contracts.CategoryUnderperforming
	case rep.SuccessRate >= cfg.HighAccuracySuccess:
		return contracts.CategoryHighAccuracy
	default:
		return contracts.CategoryStable
	}
}

// normalize x/scale 를 [0,1] 로 자름 (음수 → 0)
func normalize(x, scale float64) float64 {
	return math.Max(0, math.Min(1, safeDiv(x, scale)))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// === Restore ===

// Restore seeds the aggregator from persisted snapshots and recent entered outcomes
// (oldest first). 재시작 후에도 점수 계산에 평판이 반영되도록 run 시작 시 한 번 호출
func (a *Aggregator) Restore(reps []contracts.SourceReputation, outcomes []contracts.Resolution) int {
	history := make(map[string][]outcome)
	for _, res := range outcomes {
		if !res.Entered {
			continue
		}
		history[res.SourceID] = append(history[res.SourceID], outcome{ret: res.ReturnPct, success: res.Success()})
	}

	for _, stored := range reps {
		st := a.source(stored.SourceID)
		st.mu.Lock()
		st.total = stored.TotalResolved
		st.successes = stored.Successes
		st.voided = stored.Voided
		st.category = stored.Category
		st.history = history[stored.SourceID]
		if limit := a.cfg.HistoryLimit; limit > 0 && len(st.history) > limit {
			st.history = st.history[len(st.history)-limit:]
		}

		rep := stored
		if len(st.history) > 0 {
			rep = a.compute(stored.SourceID, st)
			rep.LastUpdated = stored.LastUpdated
			st.category = rep.Category
		} else {
			// 개별 결과가 없으면 저장된 통계를 그대로 사용
			rep.Eligible = rep.TotalResolved >= a.cfg.MinResolved
		}
		a.publish(rep)
		st.mu.Unlock()
	}

	a.log.Info().Int("sources", len(reps)).Int("outcomes", len(outcomes)).Msg("reputation restored")
	return len(reps)
}

// === Snapshots ===

func (a *Aggregator) publish(rep contracts.SourceReputation) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()

	old := *a.snapshot.Load()
	next := make(map[string]contracts.SourceReputation, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[rep.SourceID] = rep
	a.snapshot.Store(&next)
}

// Rank returns the composite rank of an eligible source (scoring.Ranker)
func (a *Aggregator) Rank(sourceID string) (float64, error) {
	rep, ok := (*a.snapshot.Load())[sourceID]
	if !ok || !rep.Eligible {
		return 0, ErrInsufficientHistory
	}
	return rep.CompositeRank, nil
}

// Get returns the latest committed reputation of a source
func (a *Aggregator) Get(sourceID string) (contracts.SourceReputation, bool) {
	rep, ok := (*a.snapshot.Load())[sourceID]
	return rep, ok
}

// Ranking 랭킹 대상(최소 건수 충족) 소스만 rank 내림차순
func (a *Aggregator) Ranking() []contracts.SourceReputation {
	snap := *a.snapshot.Load()
	out := make([]contracts.SourceReputation, 0, len(snap))
	for _, rep := range snap {
		if rep.Eligible {
			out = append(out, rep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompositeRank != out[j].CompositeRank {
			return out[i].CompositeRank > out[j].CompositeRank
		}
		return out[i].SourceID < out[j].SourceID
	})
	return out
}

// All 모든 소스 (source id 순)
func (a *Aggregator) All() []contracts.SourceReputation {
	snap := *a.snapshot.Load()
	out := make([]contracts.SourceReputation, 0, len(snap))
	for _, rep := range snap {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (a *Aggregator) source(id string) *sourceState {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.sources[id]
	if !ok {
		st = &sourceState{}
		a.sources[id] = st
	}
	return st
}
