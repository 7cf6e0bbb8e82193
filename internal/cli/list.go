package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelscope/ms-enclave/internal/model"
)

var listStatus string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sandboxes",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var statusFilter *model.SandboxStatus
		if listStatus != "" {
			s := model.SandboxStatus(listStatus)
			statusFilter = &s
		}

		infos, err := client().ListSandboxes(ctx, statusFilter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSTATUS\tCREATED")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.ID, info.Kind, info.Status, info.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	RootCmd.AddCommand(listCmd)
}
