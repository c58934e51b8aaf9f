package cli

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/magbak/mbei/internal/interface/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Watch a running component's queue depth and counters live",
	Long: `Polls a component's status endpoint on a timer and renders its
current inbox depth and cumulative processing counters in a terminal UI.`,
	RunE: runDashboard,
}

var (
	dashboardURL             string
	dashboardRefreshInterval time.Duration
)

func init() {
	rootCmd.AddCommand(dashboardCmd)

	f := dashboardCmd.Flags()
	f.StringVarP(&dashboardURL, "url", "u", "localhost:10001", "status endpoint address (host:port) to poll")
	f.DurationVarP(&dashboardRefreshInterval, "interval", "i", time.Second, "poll interval")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	m := dashboard.New(dashboardURL, dashboard.WithRefreshInterval(dashboardRefreshInterval))
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("cli: dashboard exited: %w", err)
	}
	return nil
}
