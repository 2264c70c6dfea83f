package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/signalhub/internal/store"
	"github.com/wonny/signalhub/pkg/config"
	"github.com/wonny/signalhub/pkg/database"
)

// reputationCmd represents the reputation command
var reputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "저장된 소스 평판 조회 (PostgreSQL)",
	Long: `signals.source_reputation 에 저장된 최신 평판을 rank 순으로 출력합니다.
DATABASE_URL 이 필요합니다.

Example:
  go run ./cmd/signalhub reputation
  go run ./cmd/signalhub reputation --all`,
	RunE: runReputation,
}

var reputationAll bool

func init() {
	rootCmd.AddCommand(reputationCmd)

	reputationCmd.Flags().BoolVar(&reputationAll, "all", false, "include sources below the minimum resolved count")
}

func runReputation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Database.Enabled() {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	reps, err := store.NewPostgres(db).LoadReputation(ctx)
	if err != nil {
		return err
	}

	out := reps[:0]
	for _, r := range reps {
		if reputationAll || r.Eligible {
			out = append(out, r)
		}
	}

	w := cmd.OutOrStdout()
	PrintHeader(w, fmt.Sprintf("Source reputation (%d)", len(out)))
	printRanking(w, out)
	return nil
}
