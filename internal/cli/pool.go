package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelscope/ms-enclave/internal/model"
)

var (
	poolSize    int
	poolKind    string
	poolImage   string
	poolTimeout time.Duration
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage the warm sandbox pool",
}

var poolInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the warm pool",
	Run: func(cmd *cobra.Command, args []string) {
		// InitializePool's signature takes model.SandboxConfig, the
		// kind-agnostic base, so per-kind knobs such as the image cannot
		// be passed through this call, and the container and notebook
		// factories reject a bare SandboxConfig.
		cfg := model.SandboxConfig{Timeout: poolTimeout}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := client().InitializePool(ctx, poolSize, model.SandboxKind(poolKind), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "pool init failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("pool initialized: %d %s sandbox(es)\n", poolSize, poolKind)
	},
}

var poolExecCmd = &cobra.Command{
	Use:   "exec [tool] [params-json]",
	Short: "Execute a tool against a leased pool member",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		tool := args[0]
		params := map[string]any{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				fmt.Fprintf(os.Stderr, "invalid params JSON: %v\n", err)
				os.Exit(1)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), poolTimeout+10*time.Second)
		defer cancel()

		result, err := client().ExecuteToolInPool(ctx, tool, params, poolTimeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pool exec failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(result.Output)
		if result.Error != "" {
			fmt.Fprint(os.Stderr, result.Error)
		}
	},
}

func init() {
	poolInitCmd.Flags().IntVarP(&poolSize, "size", "n", 4, "number of warm sandboxes")
	poolInitCmd.Flags().StringVarP(&poolKind, "kind", "k", string(model.KindDummy), "sandbox kind (only kinds built from a plain SandboxConfig, such as dummy, can be pooled through this call)")
	poolInitCmd.Flags().StringVarP(&poolImage, "image", "i", "python:3.11-slim", "reserved for a future per-kind pool config; currently unused")
	poolInitCmd.Flags().DurationVarP(&poolTimeout, "timeout", "t", 30*time.Second, "default tool execution timeout")

	poolExecCmd.Flags().DurationVarP(&poolTimeout, "timeout", "t", 30*time.Second, "lease and execution timeout")

	poolCmd.AddCommand(poolInitCmd)
	poolCmd.AddCommand(poolExecCmd)
	RootCmd.AddCommand(poolCmd)
}
