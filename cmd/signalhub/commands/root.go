package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/signalhub/internal/signalconfig"
	"github.com/wonny/signalhub/pkg/config"
	"github.com/wonny/signalhub/pkg/logger"
)

var (
	// Global flags
	pipelineConfig string
	verbose        bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "signalhub",
	Short: "signalhub - 트레이딩 시그널 수집/검증/추적",
	Long: `signalhub Unified CLI

채팅 메시지에서 트레이딩 시그널을 추출하고 검증/점수화한 뒤
중복을 묶고 가격으로 결과를 추적하여 소스 평판을 집계합니다.

Usage:
  go run ./cmd/signalhub [command]

Examples:
  go run ./cmd/signalhub run
  go run ./cmd/signalhub parse "BTC/USDT LONG Entry: 45000 TP1: 46500 SL: 43500"
  go run ./cmd/signalhub replay --messages msgs.jsonl --prices ticks.jsonl
  go run ./cmd/signalhub config`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&pipelineConfig, "pipeline-config", "", "tuning config YAML (default: $PIPELINE_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadPipelineConfig --pipeline-config 우선, 없으면 PIPELINE_CONFIG
func loadPipelineConfig(envPath string) (*signalconfig.Config, error) {
	path := pipelineConfig
	if path == "" {
		path = envPath
	}
	return signalconfig.LoadOrDefault(path)
}

// cliLogger 오프라인 커맨드용 콘솔 로거 (stderr, 표 출력과 분리)
func cliLogger() *logger.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logger.NewWithWriter(&config.Config{
		Env:       "development",
		LogLevel:  level,
		LogFormat: "console",
	}, os.Stderr)
}
