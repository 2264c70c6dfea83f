package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/pkg/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "적용 중인 튜닝 설정과 해시 출력",
	Long: `기본값 위에 YAML 을 덮어쓴 최종 튜닝 설정을 출력합니다.
config_hash 는 점수화된 모든 시그널에 기록되는 값과 동일합니다.

Example:
  go run ./cmd/signalhub config
  go run ./cmd/signalhub config --pipeline-config ./pipeline.yaml`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	envPath := ""
	if cfg, err := config.Load(); err == nil {
		envPath = cfg.PipelineConfigPath
	}

	cfg, err := loadPipelineConfig(envPath)
	if err != nil {
		return fmt.Errorf("load pipeline config: %w", err)
	}
	return printConfig(cmd.OutOrStdout(), cfg)
}

// printConfig YAML 로 설정 + 해시 출력
func printConfig(w io.Writer, cfg *signalconfig.Config) error {
	hash, err := signalconfig.Hash(cfg)
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}

	fmt.Fprintf(w, "# config_hash: %s\n", hash)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
