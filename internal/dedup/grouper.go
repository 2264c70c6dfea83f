package dedup

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

// member 윈도우 안의 시그널 요약
type member struct {
	id         string
	sourceID   string
	confidence float64
	createdAt  time.Time
	hasEntry   bool
	entry      float64 // 진입 구간 중앙값
	text       []rune
	groupID    string
}

func newMember(sig *contracts.CanonicalSignal) *member {
	m := &member{
		id:         sig.ID,
		sourceID:   sig.SourceID,
		confidence: sig.Confidence,
		createdAt:  sig.CreatedAt,
		text:       normalizeText(sig.RawText),
	}
	if sig.Entry != nil {
		m.hasEntry = true
		m.entry = sig.Entry.Mid()
	}
	return m
}

// groupState 그룹과 그 멤버 (윈도우에서 빠진 멤버 포함)
type groupState struct {
	group   *contracts.SignalGroup
	members map[string]*member
}

type bucketKey struct {
	asset     string
	direction contracts.Direction
}

// bucket (asset, direction) 단위 윈도우, 자체 mutex 로 보호
// 키 공간이 자산 수 x 2 로 작아서 비어도 지우지 않음
type bucket struct {
	mu      sync.Mutex
	window  []*member
	groups  map[string]*groupState
	byIDIdx map[string]*member
}

// Outcome 한 시그널의 중복 판정 결과
type Outcome struct {
	Kind      contracts.MatchKind    // 가장 강한 연결 (없으면 MatchNone)
	MatchedID string                 // 가장 강한 연결 상대
	Group     *contracts.SignalGroup // 소속 그룹 스냅샷 (단독이면 nil)
	LeaderID  string                 // 그룹에서 가장 먼저 생성된 다른 멤버 (가격 추적 단위)
	Absorbed  []string               // 병합되며 사라진 그룹 id
	Strong    bool                   // 이번 추가로 strong-consensus 가 됨
}

// Merged reports whether the signal joined at least one existing window member
func (o Outcome) Merged() bool { return o.Kind != contracts.MatchNone }

// Grouper 시간 윈도우 기반 중복/합의 그룹 관리자
// 그룹 = 매치 그래프의 연결 요소 → 도착 순서와 무관하게 같은 결과
type Grouper struct {
	cfg signalconfig.Dedup
	log zerolog.Logger

	mu      sync.Mutex // buckets map 보호
	buckets map[bucketKey]*bucket
}

// New creates a grouper
func New(cfg *signalconfig.Config, log zerolog.Logger) *Grouper {
	return &Grouper{
		cfg:     cfg.Dedup,
		log:     log.With().Str("component", "dedup.grouper").Logger(),
		buckets: make(map[bucketKey]*bucket),
	}
}

func (g *Grouper) bucketFor(asset string, dir contracts.Direction) *bucket {
	key := bucketKey{asset: asset, direction: dir}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buckets[key]
	if !ok {
		b = &bucket{groups: make(map[string]*groupState), byIDIdx: make(map[string]*member)}
		g.buckets[key] = b
	}
	return b
}

// Add compares sig against its (asset, direction) window and updates groups.
// sig.GroupID 는 호출자가 Outcome.Group 으로 채운다
func (g *Grouper) Add(sig *contracts.CanonicalSignal) Outcome {
	b := g.bucketFor(sig.Asset, sig.Direction)
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.byIDIdx[sig.ID]; ok {
		return g.outcomeFor(b, existing, contracts.MatchNone, "", nil, false)
	}

	m := newMember(sig)
	var (
		best      contracts.MatchKind
		bestID    string
		linked    []*member
		kinds     []contracts.MatchKind
		groupHits = make(map[string]*groupState)
	)
	for _, other := range b.window {
		kind := g.match(m, other)
		if kind == contracts.MatchNone {
			continue
		}
		linked = append(linked, other)
		kinds = append(kinds, kind)
		if kind.Strength() > best.Strength() || (kind == best && other.id < bestID) {
			best, bestID = kind, other.id
		}
		if other.groupID != "" {
			groupHits[other.groupID] = b.groups[other.groupID]
		}
	}

	b.window = append(b.window, m)
	b.byIDIdx[m.id] = m

	if len(linked) == 0 {
		if g.cfg.GroupSingletons {
			gs := g.newGroup(b, sig, m)
			return g.outcomeFor(b, m, contracts.MatchNone, "", gs, false)
		}
		return Outcome{}
	}

	// 생존 그룹: 가장 먼저 생성된 그룹 (동률이면 id 순)
	var survivor *groupState
	for _, gs := range groupHits {
		if survivor == nil || earlierGroup(gs.group, survivor.group) {
			survivor = gs
		}
	}
	wasStrong := false
	for _, gs := range groupHits {
		if gs.group.Classification == contracts.ConsensusStrong {
			wasStrong = true
		}
	}
	if survivor == nil {
		survivor = g.newGroup(b, sig, m)
	} else {
		g.join(survivor, m)
	}

	var absorbed []string
	for id, gs := range groupHits {
		if gs == survivor {
			continue
		}
		for _, mem := range gs.members {
			g.join(survivor, mem)
		}
		if gs.group.MatchKind.Strength() > survivor.group.MatchKind.Strength() {
			survivor.group.MatchKind = gs.group.MatchKind
		}
		delete(b.groups, id)
		absorbed = append(absorbed, id)
	}
	for i, other := range linked {
		if other.groupID == "" {
			g.join(survivor, other)
		}
		if kinds[i].Strength() > survivor.group.MatchKind.Strength() {
			survivor.group.MatchKind = kinds[i]
		}
	}
	sort.Strings(absorbed)

	recompute(survivor, sig.CreatedAt)
	strong := !wasStrong && survivor.group.Classification == contracts.ConsensusStrong

	g.log.Debug().
		Str("signal_id", sig.ID).
		Str("group_id", survivor.group.ID).
		Str("match", string(best)).
		Int("size", survivor.group.Size()).
		Strs("absorbed", absorbed).
		Msg("signal merged")

	return g.outcomeFor(b, m, best, bestID, survivor, strong, absorbed...)
}

// match 윈도우 안의 두 멤버 사이 연결 종류
func (g *Grouper) match(a, b *member) contracts.MatchKind {
	dt := a.createdAt.Sub(b.createdAt)
	if dt < 0 {
		dt = -dt
	}
	if dt > g.cfg.Window {
		return contracts.MatchNone
	}
	return classify(a, b, g.cfg)
}

// Removal Remove 결과
type Removal struct {
	Groups    []*contracts.SignalGroup // 남은 멤버로 다시 구성된 그룹
	Dissolved []string                 // 멤버가 부족해 사라진 그룹 id
}

// Remove takes a signal back out of its window when it could not be persisted.
// 남은 멤버는 매치 그래프로 다시 묶이고 가장 이른 멤버의 컴포넌트가 그룹 id 를 유지
func (g *Grouper) Remove(sig *contracts.CanonicalSignal) Removal {
	b := g.bucketFor(sig.Asset, sig.Direction)
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.byIDIdx[sig.ID]
	if !ok {
		return Removal{}
	}
	delete(b.byIDIdx, m.id)
	for i, other := range b.window {
		if other == m {
			copy(b.window[i:], b.window[i+1:])
			b.window[len(b.window)-1] = nil
			b.window = b.window[:len(b.window)-1]
			break
		}
	}

	gs := b.groups[m.groupID]
	if gs == nil {
		return Removal{}
	}
	delete(gs.members, m.id)
	return g.regroup(b, gs)
}

// regroup splits gs into the connected components of its remaining members
func (g *Grouper) regroup(b *bucket, gs *groupState) Removal {
	members := make([]*member, 0, len(gs.members))
	for _, m := range gs.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].createdAt.Equal(members[j].createdAt) {
			return members[i].createdAt.Before(members[j].createdAt)
		}
		return members[i].id < members[j].id
	})

	var comps [][]*member
	placed := make(map[string]bool, len(members))
	for _, start := range members {
		if placed[start.id] {
			continue
		}
		placed[start.id] = true
		comp := []*member{start}
		for k := 0; k < len(comp); k++ {
			for _, other := range members {
				if !placed[other.id] && g.match(comp[k], other) != contracts.MatchNone {
					placed[other.id] = true
					comp = append(comp, other)
				}
			}
		}
		sort.Slice(comp, func(i, j int) bool { return comp[i].createdAt.Before(comp[j].createdAt) })
		comps = append(comps, comp)
	}

	var out Removal
	kept := false
	for _, comp := range comps {
		if len(comp) < 2 && !g.cfg.GroupSingletons {
			comp[0].groupID = ""
			continue
		}
		target := gs
		if kept {
			target = &groupState{
				group: &contracts.SignalGroup{
					ID:        uuid.NewString(),
					Asset:     gs.group.Asset,
					Direction: gs.group.Direction,
					MatchKind: gs.group.MatchKind,
					UpdatedAt: gs.group.UpdatedAt,
				},
			}
			b.groups[target.group.ID] = target
		}
		kept = true

		target.members = make(map[string]*member, len(comp))
		for _, m := range comp {
			g.join(target, m)
		}
		target.group.CreatedAt = comp[0].createdAt
		recompute(target, target.group.UpdatedAt)
		out.Groups = append(out.Groups, target.group.Clone())
	}
	if !kept {
		delete(b.groups, gs.group.ID)
		out.Dissolved = append(out.Dissolved, gs.group.ID)
	}
	return out
}

func (g *Grouper) newGroup(b *bucket, sig *contracts.CanonicalSignal, m *member) *groupState {
	gs := &groupState{
		group: &contracts.SignalGroup{
			ID:        uuid.NewString(),
			Asset:     sig.Asset,
			Direction: sig.Direction,
			CreatedAt: sig.CreatedAt,
			UpdatedAt: sig.CreatedAt,
		},
		members: make(map[string]*member),
	}
	g.join(gs, m)
	recompute(gs, sig.CreatedAt)
	b.groups[gs.group.ID] = gs
	return gs
}

func (g *Grouper) join(gs *groupState, m *member) {
	m.groupID = gs.group.ID
	gs.members[m.id] = m
}

// recompute 멤버 목록, 대표, 합의 점수, 분류, 평균 진입가 재계산
func recompute(gs *groupState, at time.Time) {
	grp := gs.group
	members := make([]*member, 0, len(gs.members))
	for _, m := range gs.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })

	grp.MemberIDs = grp.MemberIDs[:0]
	sources := make(map[string]bool)
	grp.SourceIDs = grp.SourceIDs[:0]
	var (
		confSum, entrySum float64
		entries           int
		primary           *member
	)
	for _, m := range members {
		grp.MemberIDs = append(grp.MemberIDs, m.id)
		if !sources[m.sourceID] {
			sources[m.sourceID] = true
			grp.SourceIDs = append(grp.SourceIDs, m.sourceID)
		}
		confSum += m.confidence
		if m.hasEntry {
			entrySum += m.entry
			entries++
		}
		if primary == nil || betterPrimary(m, primary) {
			primary = m
		}
		if m.createdAt.Before(grp.CreatedAt) {
			grp.CreatedAt = m.createdAt
		}
	}
	sort.Strings(grp.SourceIDs)

	grp.PrimaryID = primary.id
	grp.ConsensusScore = confSum / float64(len(members))
	grp.Classification = contracts.ClassifyMembers(len(members))
	grp.MeanEntry = nil
	if entries > 0 {
		grp.MeanEntry = contracts.Float(entrySum / float64(entries))
	}
	if at.After(grp.UpdatedAt) {
		grp.UpdatedAt = at
	}
}

// betterPrimary 높은 confidence → 이른 생성 → 작은 id
func betterPrimary(a, b *member) bool {
	if a.confidence != b.confidence {
		return a.confidence > b.confidence
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id < b.id
}

func earlierGroup(a, b *contracts.SignalGroup) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (g *Grouper) outcomeFor(b *bucket, m *member, kind contracts.MatchKind, matchedID string, gs *groupState, strong bool, absorbed ...string) Outcome {
	out := Outcome{Kind: kind, MatchedID: matchedID, Strong: strong, Absorbed: absorbed}
	if gs == nil {
		if m.groupID == "" {
			return out
		}
		gs = b.groups[m.groupID]
		if gs == nil {
			return out
		}
	}
	out.Group = gs.group.Clone()

	var leader *member
	for _, other := range gs.members {
		if other.id == m.id {
			continue
		}
		if leader == nil || other.createdAt.Before(leader.createdAt) ||
			(other.createdAt.Equal(leader.createdAt) && other.id < leader.id) {
			leader = other
		}
	}
	if leader != nil {
		out.LeaderID = leader.id
	}
	return out
}

// Prune drops window members older than now - window and closes groups left without any
// live member. 닫힌 그룹은 마지막 스냅샷으로 반환되고 이후 변경되지 않음
func (g *Grouper) Prune(now time.Time) []*contracts.SignalGroup {
	cutoff := now.Add(-g.cfg.Window)

	g.mu.Lock()
	buckets := make([]*bucket, 0, len(g.buckets))
	keys := make([]bucketKey, 0, len(g.buckets))
	for k, b := range g.buckets {
		buckets = append(buckets, b)
		keys = append(keys, k)
	}
	g.mu.Unlock()

	var closed []*contracts.SignalGroup
	for i, b := range buckets {
		b.mu.Lock()
		live := b.window[:0]
		alive := make(map[string]bool)
		pruned := 0
		for _, m := range b.window {
			if m.createdAt.Before(cutoff) {
				delete(b.byIDIdx, m.id)
				pruned++
				continue
			}
			live = append(live, m)
			if m.groupID != "" {
				alive[m.groupID] = true
			}
		}
		for j := len(live); j < len(b.window); j++ {
			b.window[j] = nil
		}
		b.window = live

		for id, gs := range b.groups {
			if alive[id] {
				continue
			}
			gs.group.Closed = true
			closed = append(closed, gs.group.Clone())
			delete(b.groups, id)
		}
		b.mu.Unlock()

		if pruned > 0 {
			g.log.Debug().Str("asset", keys[i].asset).Str("direction", string(keys[i].direction)).
				Int("pruned", pruned).Msg("window pruned")
		}
	}

	sort.Slice(closed, func(i, j int) bool { return closed[i].ID < closed[j].ID })
	return closed
}

// Groups returns snapshots of every open group
func (g *Grouper) Groups() []*contracts.SignalGroup {
	g.mu.Lock()
	buckets := make([]*bucket, 0, len(g.buckets))
	for _, b := range g.buckets {
		buckets = append(buckets, b)
	}
	g.mu.Unlock()

	var out []*contracts.SignalGroup
	for _, b := range buckets {
		b.mu.Lock()
		for _, gs := range b.groups {
			out = append(out, gs.group.Clone())
		}
		b.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return earlierGroup(out[i], out[j]) })
	return out
}

// WindowSize 현재 윈도우에 남은 시그널 수
func (g *Grouper) WindowSize() int {
	g.mu.Lock()
	buckets := make([]*bucket, 0, len(g.buckets))
	for _, b := range g.buckets {
		buckets = append(buckets, b)
	}
	g.mu.Unlock()

	n := 0
	for _, b := range buckets {
		b.mu.Lock()
		n += len(b.window)
		b.mu.Unlock()
	}
	return n
}
