package dedup

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/signalconfig"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newSig(id, source string, entry, conf float64, at time.Time, text string) *contracts.CanonicalSignal {
	sig := &contracts.CanonicalSignal{
		ID:         id,
		SourceID:   source,
		RawText:    text,
		Confidence: conf,
		CreatedAt:  at,
		Draft:      contracts.Draft{Asset: "BTC/USDT", Direction: contracts.DirectionLong},
	}
	if entry > 0 {
		z := contracts.SinglePrice(entry)
		sig.Entry = &z
	}
	return sig
}

func newTestGrouper(mutate ...func(*signalconfig.Config)) *Grouper {
	cfg := signalconfig.Default()
	for _, m := range mutate {
		m(cfg)
	}
	return New(cfg, zerolog.Nop())
}

func TestTwoSourcesModerateConsensus(t *testing.T) {
	g := newTestGrouper()

	a := newSig("a", "alpha", 45000, 0.70, t0, "BTC LONG @45000 target 46500")
	b := newSig("b", "beta", 45100, 0.72, t0.Add(time.Hour), "Bitcoin LONG entry 45100 tp 46600")

	first := g.Add(a)
	assert.False(t, first.Merged())
	assert.Nil(t, first.Group, "singletons are not grouped by default")

	out := g.Add(b)
	require.True(t, out.Merged())
	assert.Equal(t, contracts.MatchExact, out.Kind)
	assert.Equal(t, "a", out.MatchedID)
	assert.Equal(t, "a", out.LeaderID)
	require.NotNil(t, out.Group)

	grp := out.Group
	assert.Equal(t, contracts.ConsensusModerate, grp.Classification)
	assert.Equal(t, []string{"a", "b"}, grp.MemberIDs)
	assert.Equal(t, []string{"alpha", "beta"}, grp.SourceIDs)
	assert.Equal(t, "b", grp.PrimaryID, "higher confidence member is primary")
	assert.InDelta(t, 0.71, grp.ConsensusScore, 1e-9)
	require.NotNil(t, grp.MeanEntry)
	assert.InDelta(t, 45050, *grp.MeanEntry, 1e-9)
	assert.Equal(t, t0, grp.CreatedAt)
	assert.False(t, out.Strong)
}

func TestMatchKinds(t *testing.T) {
	tests := []struct {
		name string
		a, b *contracts.CanonicalSignal
		want contracts.MatchKind
	}{
		{
			name: "exact",
			a:    newSig("a", "s1", 45000, 0.5, t0, "alpha"),
			b:    newSig("b", "s2", 45200, 0.5, t0.Add(5*time.Hour), "bravo"),
			want: contracts.MatchExact,
		},
		{
			name: "close entry but too far apart in time is partial",
			a:    newSig("a", "s1", 45000, 0.5, t0, "alpha"),
			b:    newSig("b", "s2", 45200, 0.5, t0.Add(7*time.Hour), "bravo"),
			want: contracts.MatchPartial,
		},
		{
			name: "partial",
			a:    newSig("a", "s1", 45000, 0.5, t0, "alpha"),
			b:    newSig("b", "s2", 47000, 0.5, t0, "bravo"),
			want: contracts.MatchPartial,
		},
		{
			name: "paraphrase without entry",
			a:    newSig("a", "s1", 0, 0.5, t0, "ETH short now, breakdown confirmed"),
			b:    newSig("b", "s2", 0, 0.5, t0, "ETH short now!! breakdown confirmed"),
			want: contracts.MatchParaphrase,
		},
		{
			name: "no entry and different text",
			a:    newSig("a", "s1", 0, 0.5, t0, "alpha"),
			b:    newSig("b", "s2", 45000, 0.5, t0, "bravo"),
			want: contracts.MatchNone,
		},
		{
			name: "entries too far apart",
			a:    newSig("a", "s1", 45000, 0.5, t0, "alpha"),
			b:    newSig("b", "s2", 52000, 0.5, t0, "bravo"),
			want: contracts.MatchNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGrouper()
			g.Add(tt.a)
			out := g.Add(tt.b)
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, tt.want != contracts.MatchNone, out.Group != nil)
		})
	}
}

func TestDifferentDirectionNeverMatches(t *testing.T) {
	g := newTestGrouper()
	a := newSig("a", "s1", 45000, 0.5, t0, "same text")
	b := newSig("b", "s2", 45000, 0.5, t0, "same text")
	b.Direction = contracts.DirectionShort

	g.Add(a)
	assert.False(t, g.Add(b).Merged())
}

func TestStrongConsensusFlag(t *testing.T) {
	g := newTestGrouper()
	g.Add(newSig("a", "s1", 45000, 0.5, t0, "alpha"))
	assert.False(t, g.Add(newSig("b", "s2", 45100, 0.6, t0, "bravo")).Strong)

	out := g.Add(newSig("c", "s3", 45050, 0.9, t0, "charlie"))
	assert.True(t, out.Strong)
	assert.Equal(t, contracts.ConsensusStrong, out.Group.Classification)
	assert.Equal(t, "c", out.Group.PrimaryID)

	assert.False(t, g.Add(newSig("d", "s4", 45020, 0.5, t0, "delta")).Strong, "advisory fires once")
}

func TestBridgingSignalMergesGroups(t *testing.T) {
	g := newTestGrouper()

	g.Add(newSig("a", "s1", 45000, 0.5, t0, "alpha"))
	first := g.Add(newSig("b", "s2", 45100, 0.5, t0.Add(time.Minute), "bravo"))
	g.Add(newSig("c", "s3", 49000, 0.5, t0.Add(2*time.Minute), "charlie"))
	second := g.Add(newSig("d", "s4", 49100, 0.5, t0.Add(3*time.Minute), "delta"))
	require.NotEqual(t, first.Group.ID, second.Group.ID)
	require.Len(t, g.Groups(), 2)

	out := g.Add(newSig("e", "s5", 47000, 0.5, t0.Add(4*time.Minute), "echo"))
	require.NotNil(t, out.Group)
	assert.Equal(t, first.Group.ID, out.Group.ID, "earliest group survives")
	assert.Equal(t, []string{second.Group.ID}, out.Absorbed)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, out.Group.MemberIDs)
	assert.Equal(t, contracts.MatchExact, out.Group.MatchKind, "strongest link in component")
	assert.Equal(t, "a", out.LeaderID)
	assert.Len(t, g.Groups(), 1)
}

func TestGroupSingletons(t *testing.T) {
	g := newTestGrouper(func(c *signalconfig.Config) { c.Dedup.GroupSingletons = true })

	out := g.Add(newSig("a", "s1", 45000, 0.5, t0, "alpha"))
	require.NotNil(t, out.Group)
	assert.Equal(t, contracts.ConsensusSingle, out.Group.Classification)
	assert.False(t, out.Merged())

	out = g.Add(newSig("b", "s2", 45100, 0.5, t0, "bravo"))
	assert.Equal(t, contracts.ConsensusModerate, out.Group.Classification)
	assert.Len(t, g.Groups(), 1)
}

func TestDuplicateIDIgnored(t *testing.T) {
	g := newTestGrouper()
	g.Add(newSig("a", "s1", 45000, 0.5, t0, "alpha"))
	g.Add(newSig("b", "s2", 45100, 0.5, t0, "bravo"))

	out := g.Add(newSig("a", "s1", 45000, 0.5, t0, "alpha"))
	require.NotNil(t, out.Group)
	assert.Equal(t, []string{"a", "b"}, out.Group.MemberIDs)
	assert.Equal(t, 2, g.WindowSize())
}

func TestPruneClosesAgedGroups(t *testing.T) {
	g := newTestGrouper()
	g.Add(newSig("a", "s1", 45000, 0.5, t0, "alpha"))
	g.Add(newSig("b", "s2", 45100, 0.5, t0.Add(time.Hour), "bravo"))

	assert.Empty(t, g.Prune(t0.Add(24*time.Hour+30*time.Minute)), "b still inside the window")
	assert.Equal(t, 1, g.WindowSize())
	require.Len(t, g.Groups(), 1)

	closed := g.Prune(t0.Add(26 * time.Hour))
	require.Len(t, closed, 1)
	assert.True(t, closed[0].Closed)
	assert.Equal(t, []string{"a", "b"}, closed[0].MemberIDs)
	assert.Equal(t, 0, g.WindowSize())
	assert.Empty(t, g.Groups())

	// 윈도우 밖 시그널과는 매치되지 않음
	out := g.Add(newSig("c", "s3", 45000, 0.5, t0.Add(27*time.Hour), "charlie"))
	assert.False(t, out.Merged())
}

func partition(g *Grouper) []string {
	var out []string
	for _, grp := range g.Groups() {
		out = append(out, strings.Join(grp.MemberIDs, ","))
	}
	sort.Strings(out)
	return out
}

// 같은 배치를 다른 순서로 넣어도 최종 그룹은 같아야 한다
func TestGroupingIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	centers := []float64{30000, 36000, 45000, 52000}
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima", "mike", "november"}

	var batch []*contracts.CanonicalSignal
	for i, w := range words {
		c := centers[rng.Intn(len(centers))]
		entry := c * (1 + (rng.Float64()-0.5)*0.08)
		if rng.Intn(5) == 0 {
			entry = 0
		}
		at := t0.Add(time.Duration(rng.Intn(12*60)) * time.Minute)
		batch = append(batch, newSig(fmt.Sprintf("sig-%02d", i), fmt.Sprintf("src-%d", i%5), entry, rng.Float64(), at, w))
	}

	var want []string
	for round := 0; round < 25; round++ {
		order := rng.Perm(len(batch))
		g := newTestGrouper()
		for _, idx := range order {
			g.Add(batch[idx].Clone())
		}
		got := partition(g)
		if round == 0 {
			want = got
			continue
		}
		assert.Equal(t, want, got, "round %d", round)
	}
	assert.NotEmpty(t, want)
}

func TestConcurrentAdds(t *testing.T) {
	g := newTestGrouper()
	assets := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sig := newSig(fmt.Sprintf("c-%d", i), "src", 100, 0.5, t0, fmt.Sprintf("text %d", i))
			sig.Asset = assets[i%len(assets)]
			g.Add(sig)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 60, g.WindowSize())
	groups := g.Groups()
	require.Len(t, groups, 3)
	for _, grp := range groups {
		assert.Equal(t, 20, grp.Size())
	}
}

func TestLevenshteinRatio(t *testing.T) {
	assert.Equal(t, 1.0, levenshteinRatio(normalizeText("BTC long!"), normalizeText("btc   LONG")))
	assert.InDelta(t, 0.75, levenshteinRatio([]rune("abcd"), []rune("abcx")), 1e-9)
	assert.Equal(t, 3, levenshtein([]rune("kitten"), []rune("sitting")))
	assert.Equal(t, 1.0, levenshteinRatio(nil, nil))
}

func TestRemove(t *testing.T) {
	t.Run("bridge removal splits the group", func(t *testing.T) {
		g := newTestGrouper()
		a := newSig("a", "alpha", 45000, 0.6, t0, "btc long 45k swing")
		c := newSig("c", "gamma", 49000, 0.6, t0.Add(2*time.Hour), "bitcoin breakout retest, adding")
		b := newSig("b", "beta", 47000, 0.6, t0.Add(time.Hour), "BTC LONG @ 47000 tp 50000")

		g.Add(a)
		g.Add(c)
		out := g.Add(b)
		require.NotNil(t, out.Group)
		assert.Equal(t, 3, out.Group.Size())

		removal := g.Remove(b)
		assert.Empty(t, removal.Groups)
		assert.Equal(t, []string{out.Group.ID}, removal.Dissolved)
		assert.Empty(t, g.Groups())
		assert.Equal(t, 2, g.WindowSize())

		// 다시 들어오면 처음과 같이 병합으로 판정
		again := g.Add(b)
		assert.True(t, again.Merged())
		require.NotNil(t, again.Group)
		assert.Equal(t, 3, again.Group.Size())
	})

	t.Run("remaining members keep the group", func(t *testing.T) {
		g := newTestGrouper()
		a := newSig("a", "alpha", 45000, 0.6, t0, "BTC LONG @45000 target 46500")
		b := newSig("b", "beta", 45100, 0.7, t0.Add(time.Hour), "Bitcoin LONG entry 45100 tp 46600")
		c := newSig("c", "gamma", 45050, 0.9, t0.Add(2*time.Hour), "btc longs from 45050, tp 46800")

		g.Add(a)
		first := g.Add(b)
		g.Add(c)

		removal := g.Remove(c)
		require.Len(t, removal.Groups, 1)
		grp := removal.Groups[0]
		assert.Equal(t, first.Group.ID, grp.ID)
		assert.Equal(t, []string{"a", "b"}, grp.MemberIDs)
		assert.Equal(t, "b", grp.PrimaryID)
		assert.Equal(t, contracts.ConsensusModerate, grp.Classification)
		assert.InDelta(t, 0.65, grp.ConsensusScore, 1e-9)
		assert.Empty(t, removal.Dissolved)
	})

	t.Run("unknown signal", func(t *testing.T) {
		g := newTestGrouper()
		assert.Equal(t, Removal{}, g.Remove(newSig("x", "alpha", 45000, 0.5, t0, "BTC long")))
	})
}
