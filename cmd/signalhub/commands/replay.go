package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/lifecycle"
	"github.com/wonny/signalhub/internal/pipeline"
	"github.com/wonny/signalhub/internal/realtime/feed"
	"github.com/wonny/signalhub/internal/replay"
	"github.com/wonny/signalhub/internal/reputation"
	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/internal/store"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "기록된 메시지/시세로 파이프라인 오프라인 재생",
	Long: `JSONL 메시지와 시세 틱을 시각 순으로 섞어 파이프라인 전체를 재생합니다.
실제 시세 제공자 대신 틱을 직접 주입하고, 결과는 메모리에만 남습니다.

messages.jsonl: {"platform","source_id","message_id","text","timestamp"}
prices.jsonl:   {"asset","price","timestamp"}

Example:
  go run ./cmd/signalhub replay --messages msgs.jsonl --prices ticks.jsonl`,
	RunE: runReplay,
}

var (
	replayMessages string
	replayPrices   string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVar(&replayMessages, "messages", "", "RawMessage JSONL file (required)")
	replayCmd.Flags().StringVar(&replayPrices, "prices", "", "PriceTick JSONL file")
	_ = replayCmd.MarkFlagRequired("messages")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadPipelineConfig("")
	if err != nil {
		return fmt.Errorf("load pipeline config: %w", err)
	}

	msgs, err := readJSONL(replayMessages, replay.ReadMessages)
	if err != nil {
		return err
	}
	var ticks []contracts.PriceTick
	if replayPrices != "" {
		if ticks, err = readJSONL(replayPrices, replay.ReadTicks); err != nil {
			return err
		}
	}

	return replayRun(cmd.Context(), cmd.OutOrStdout(), cfg, msgs, ticks)
}

func readJSONL[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	out, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// replayRun 메모리 저장소 + 정적 피드로 파이프라인을 구성해 재생하고 결과 출력
func replayRun(ctx context.Context, w io.Writer, cfg *signalconfig.Config, msgs []contracts.RawMessage, ticks []contracts.PriceTick) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cliLogger().Zerolog()

	mem := store.NewMemory()
	tracker := lifecycle.New(feed.NewStatic(), mem, cfg.Lifecycle, lifecycle.Options{}, nil, log)
	rep := reputation.New(cfg.Reputation, log)

	p, err := pipeline.New(pipeline.Deps{
		Config:     cfg,
		Tracker:    tracker,
		Reputation: rep,
		Sink:       mem,
		Log:        log,
	})
	if err != nil {
		return err
	}

	sum := replay.Run(ctx, p, replay.Merge(msgs, ticks))

	PrintHeader(w, fmt.Sprintf("Replay: %d messages, %d ticks, %d resolutions", sum.Messages, sum.Ticks, sum.Resolutions))
	statuses := make([]string, 0, len(sum.ByStatus))
	for s, n := range sum.ByStatus {
		statuses = append(statuses, fmt.Sprintf("%s=%d", s, n))
	}
	sort.Strings(statuses)
	fmt.Fprintf(w, "  %s\n", strings.Join(statuses, "  "))

	PrintHeader(w, "Signals")
	signals := newTable(w, "Source", "Asset", "Dir", "Entry", "Targets", "Confidence", "State", "Return")
	for _, sig := range mem.Signals() {
		ret := "-"
		if sig.ReturnPct != nil {
			ret = formatPct(*sig.ReturnPct)
		}
		signals.Append([]string{
			sig.SourceID,
			sig.Asset,
			string(sig.Direction),
			formatZone(sig.Entry),
			formatTargets(sig.Targets),
			fmt.Sprintf("%.3f", sig.Confidence),
			string(sig.State),
			ret,
		})
	}
	signals.Render()

	PrintHeader(w, "Groups")
	groups := newTable(w, "Group", "Asset", "Dir", "Members", "Sources", "Consensus", "Class", "Match")
	for _, g := range mem.Groups() {
		groups.Append([]string{
			shortID(g.ID),
			g.Asset,
			string(g.Direction),
			strconv.Itoa(len(g.MemberIDs)),
			strings.Join(g.SourceIDs, ","),
			fmt.Sprintf("%.3f", g.ConsensusScore),
			string(g.Classification),
			string(g.MatchKind),
		})
	}
	groups.Render()

	PrintHeader(w, "Source reputation")
	printRanking(w, rep.All())
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
