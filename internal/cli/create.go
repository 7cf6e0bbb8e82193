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
	createKind    string
	createImage   string
	createTimeout time.Duration
	createID      string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a sandbox",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := model.ContainerSandboxConfig{
			SandboxConfig: model.SandboxConfig{Timeout: createTimeout},
			Image:         createImage,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		id, err := client().CreateSandbox(ctx, model.SandboxKind(createKind), cfg, createID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(id)
	},
}

var execCmd = &cobra.Command{
	Use:   "exec [sandbox-id] [tool] [params-json]",
	Short: "Execute a tool against a sandbox",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		id, tool := args[0], args[1]
		params := map[string]any{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &params); err != nil {
				fmt.Fprintf(os.Stderr, "invalid params JSON: %v\n", err)
				os.Exit(1)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result, err := client().ExecuteTool(ctx, id, tool, params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "exec failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(result.Output)
		if result.Error != "" {
			fmt.Fprint(os.Stderr, result.Error)
		}
		if result.Status == model.ExecError || result.Status == model.ExecTimeout {
			os.Exit(1)
		}
	},
}

func init() {
	createCmd.Flags().StringVarP(&createKind, "kind", "k", string(model.KindContainer), "sandbox kind")
	createCmd.Flags().StringVarP(&createImage, "image", "i", "python:3.11-slim", "container image")
	createCmd.Flags().DurationVarP(&createTimeout, "timeout", "t", 30*time.Second, "default tool execution timeout")
	createCmd.Flags().StringVar(&createID, "id", "", "explicit sandbox id (default: server-generated)")
	RootCmd.AddCommand(createCmd)
	RootCmd.AddCommand(execCmd)
}
