package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "camon",
	Short: "Camon - 컨트랙트 가격 모니터링 & 랭킹 시스템",
	Long: `Camon Unified CLI

텔레그램에서 언급된 컨트랙트 주소를 실시간으로 추적한다.
WebSocket 가격 피드 + REST 폴링으로 가격을 수집하고,
그룹/콜 리더보드를 Redis에 증분 갱신한다.

Usage:
  go run ./cmd/camon [command]

Examples:
  go run ./cmd/camon serve
  go run ./cmd/camon reset`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
