package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [sandbox-id]",
	Short: "Stop a sandbox without removing it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ok, err := client().StopSandbox(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "stop failed: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "sandbox not found")
			os.Exit(1)
		}
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [sandbox-id]",
	Short: "Delete a sandbox",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ok, err := client().DeleteSandbox(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "rm failed: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("nothing to delete")
			return
		}
		fmt.Println("deleted")
	},
}

func init() {
	RootCmd.AddCommand(stopCmd)
	RootCmd.AddCommand(rmCmd)
}
