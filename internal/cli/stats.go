package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show manager and pool statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		stats := client().GetStats(ctx)
		fmt.Printf("uptime: %s\n", stats.Uptime)
		fmt.Printf("cleanup interval: %s\n", stats.CleanupInterval)
		if !stats.LastJanitorRun.IsZero() {
			fmt.Printf("last janitor run: %s\n", stats.LastJanitorRun.Format(time.RFC3339))
		}
		fmt.Println("sandboxes by status:")
		for status, count := range stats.TotalByStatus {
			fmt.Printf("  %s: %d\n", status, count)
		}
		fmt.Printf("pool: size=%d idle=%d busy=%d initialized=%t\n",
			stats.Pool.Size, stats.Pool.Idle, stats.Pool.Busy, stats.Pool.Initialized)
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
}
