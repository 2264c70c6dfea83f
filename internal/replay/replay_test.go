package replay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/lifecycle"
	"github.com/wonny/signalhub/internal/pipeline"
	"github.com/wonny/signalhub/internal/realtime/feed"
	"github.com/wonny/signalhub/internal/reputation"
	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/internal/store"
)

const messagesJSONL = `
{"platform":"telegram","source_id":"alpha","message_id":"1","text":"BTC/USDT LONG Entry: 45000 TP1: 46500 SL: 43500","timestamp":"2026-03-01T09:00:00Z"}
# duplicate delivery
{"platform":"telegram","source_id":"alpha","message_id":"1","text":"BTC/USDT LONG Entry: 45000 TP1: 46500 SL: 43500","timestamp":"2026-03-01T09:00:00Z"}
{"platform":"discord","source_id":"beta","message_id":"9","text":"Bitcoin LONG entry 45100 tp 46600","timestamp":"2026-03-01T09:20:00Z"}
{"platform":"telegram","source_id":"gamma","message_id":"3","text":"good morning","timestamp":"2026-03-01T09:30:00Z"}
`

const ticksJSONL = `
{"asset":"BTC/USDT","price":45050,"timestamp":"2026-03-01T09:00:00Z"}
{"asset":"BTC/USDT","price":45900,"timestamp":"2026-03-01T10:00:00Z"}
{"asset":"BTC/USDT","price":46700,"timestamp":"2026-03-01T11:00:00Z"}
`

func TestReadMessages(t *testing.T) {
	msgs, err := ReadMessages(strings.NewReader(messagesJSONL))
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "alpha", msgs[0].SourceID)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 20, 0, 0, time.UTC), msgs[2].Timestamp)

	_, err = ReadMessages(strings.NewReader("{\"platform\":\"x\"}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadTicks_DefaultsSource(t *testing.T) {
	ticks, err := ReadTicks(strings.NewReader(ticksJSONL))
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, "replay", ticks[0].Source)
	assert.Equal(t, 46700.0, ticks[2].Price)
}

func TestMerge_MessagesFirstOnTie(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := Merge(
		[]contracts.RawMessage{{MessageID: "late", Timestamp: at.Add(time.Minute)}, {MessageID: "tie", Timestamp: at}},
		[]contracts.PriceTick{{Asset: "BTC/USDT", Price: 1, Timestamp: at}, {Asset: "BTC/USDT", Price: 2, Timestamp: at.Add(-time.Minute)}},
	)
	require.Len(t, events, 4)
	assert.Equal(t, 2.0, events[0].Tick.Price)
	assert.Equal(t, "tie", events[1].Message.MessageID)
	assert.Equal(t, 1.0, events[2].Tick.Price)
	assert.Equal(t, "late", events[3].Message.MessageID)
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := signalconfig.Default()
	mem := store.NewMemory()
	tracker := lifecycle.New(feed.NewStatic(), mem, cfg.Lifecycle, lifecycle.Options{}, nil, zerolog.Nop())
	rep := reputation.New(cfg.Reputation, zerolog.Nop())
	p, err := pipeline.New(pipeline.Deps{Config: cfg, Tracker: tracker, Reputation: rep, Sink: mem, Log: zerolog.Nop()})
	require.NoError(t, err)

	msgs, err := ReadMessages(strings.NewReader(messagesJSONL))
	require.NoError(t, err)
	ticks, err := ReadTicks(strings.NewReader(ticksJSONL))
	require.NoError(t, err)

	sum := Run(context.Background(), p, Merge(msgs, ticks))

	assert.Equal(t, 4, sum.Messages)
	assert.Equal(t, 3, sum.Ticks)
	assert.Equal(t, 1, sum.ByStatus[pipeline.StatusAccepted])
	assert.Equal(t, 1, sum.ByStatus[pipeline.StatusMerged])
	assert.Equal(t, 1, sum.ByStatus[pipeline.StatusReplayed])
	assert.Equal(t, 1, sum.ByStatus[pipeline.StatusNoSignal])
	assert.Equal(t, 2, sum.Resolutions, "both members of the unit resolve on the same tick")

	require.Len(t, mem.Groups(), 1)
	for _, sig := range mem.Signals() {
		assert.Equal(t, contracts.StateTargetHit, sig.State)
	}

	alpha, ok := rep.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, 1, alpha.Successes)
	beta, ok := rep.Get("beta")
	require.True(t, ok)
	assert.Equal(t, 1, beta.TotalResolved)
	assert.Equal(t, 0, tracker.Tracked())
}
