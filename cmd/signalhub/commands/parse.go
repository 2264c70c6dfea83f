package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/extract"
	"github.com/wonny/signalhub/internal/scoring"
	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/internal/validate"
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "메시지 한 건 추출/검증/점수 확인",
	Long: `메시지 한 건을 추출 → 검증 → 점수화하여 표로 출력합니다.
저장/추적/평판 반영은 하지 않습니다 (평판은 중립값 사용).

Example:
  go run ./cmd/signalhub parse "BTC/USDT LONG Entry: 45000 TP1: 46500 SL: 43500"
  go run ./cmd/signalhub parse --platform discord "eth short 3000 tp 2800"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

var parsePlatform string

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parsePlatform, "platform", "telegram", "source platform (parser selection)")
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadPipelineConfig("")
	if err != nil {
		return fmt.Errorf("load pipeline config: %w", err)
	}
	return parseMessage(cmd.OutOrStdout(), cfg, parsePlatform, strings.Join(args, " "))
}

// parseMessage 추출/검증/점수 결과를 w 에 출력
func parseMessage(w io.Writer, cfg *signalconfig.Config, platform, text string) error {
	registry := extract.NewRegistry(extract.New(cfg))
	validator := validate.New(cfg)
	scorer := scoring.New(cfg)

	res := registry.Extract(contracts.RawMessage{
		Platform:  platform,
		SourceID:  "cli",
		MessageID: "cli",
		Text:      text,
		Timestamp: time.Now(),
	})

	PrintHeader(w, fmt.Sprintf("Parsed %d candidate(s)", len(res.Drafts)))

	if len(res.Drafts) > 0 {
		table := newTable(w, "Asset", "Dir", "Entry", "Targets", "Stop", "Lev", "Verdict", "Tier", "Confidence")
		for _, d := range res.Drafts {
			verdict := validator.Validate(d)
			row := []string{
				d.Asset,
				string(d.Direction),
				formatZone(d.Entry),
				formatTargets(d.Targets),
				formatStop(d.Stop, d.StopSynthesized),
				formatLeverage(d.Leverage),
			}
			if !verdict.Accepted {
				row = append(row, string(verdict.Reason), "-", "-")
			} else {
				score := scorer.Score(d, nil)
				row = append(row, "accepted", string(score.Tier), fmt.Sprintf("%.3f", score.Final))
			}
			table.Append(row)
		}
		table.Render()
	}

	for _, drop := range res.Dropped {
		fmt.Fprintf(w, "  dropped %s: %s\n", drop.Asset, drop.Reason)
	}
	if len(res.Drafts) == 0 && len(res.Dropped) == 0 {
		fmt.Fprintln(w, "  no trading signal found")
	}
	return nil
}
