package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/wonny/signalhub/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a formatted section header
func PrintHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, "───────────────────────────────────────────────────────────")
}

// newTable 공통 스타일 표
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatZone(z *contracts.PriceZone) string {
	if z == nil {
		return "-"
	}
	if z.Low == z.High {
		return formatPrice(z.Low)
	}
	return formatPrice(z.Low) + "-" + formatPrice(z.High)
}

func formatTargets(targets []float64) string {
	if len(targets) == 0 {
		return "-"
	}
	parts := make([]string, len(targets))
	for i, t := range targets {
		parts[i] = formatPrice(t)
	}
	return strings.Join(parts, ", ")
}

func formatStop(stop *float64, synthesized bool) string {
	if stop == nil {
		return "-"
	}
	if synthesized {
		return formatPrice(*stop) + " (auto)"
	}
	return formatPrice(*stop)
}

func formatLeverage(l *int) string {
	if l == nil {
		return "-"
	}
	return fmt.Sprintf("%dx", *l)
}

func formatPct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// printRanking 평판 표 (rank 순 입력 가정)
func printRanking(w io.Writer, reps []contracts.SourceReputation) {
	table := newTable(w, "Source", "Resolved", "Success", "Avg Return", "Risk Adj", "Drawdown", "Rank", "Category")
	for _, r := range reps {
		table.Append([]string{
			r.SourceID,
			strconv.Itoa(r.TotalResolved),
			formatPct(r.SuccessRate),
			formatPct(r.AvgReturn),
			fmt.Sprintf("%.2f", r.RiskAdjusted),
			formatPct(r.Drawdown),
			fmt.Sprintf("%.3f", r.CompositeRank),
			string(r.Category),
		})
	}
	table.Render()
}
