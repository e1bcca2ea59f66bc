// VcelJAK is the rule and schedule automation engine for networked sensor
// hubs organized into hierarchical groups.
//
// Incoming readings are evaluated against user-defined automation rules
// before being persisted; long-running maintenance schedules accumulate
// streak-based progress from the time-series store. Triggered rules
// execute side effects: audit events, notifications, bounded health
// adjustments, live websocket updates and tag mutations that re-enter
// evaluation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vceljak",
	Short: "Rule and schedule automation engine for sensor hub groups",
	Long: `VcelJAK evaluates telemetry-driven automation rules and tracks
long-running maintenance schedules for networked sensor hubs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
