// Command enclavectl is the cobra-based client for the enclave
// sandbox server: create/list/stop/rm sandboxes, execute tools, drive
// the warm pool, or run the server itself via "enclavectl serve".
package main

import "github.com/modelscope/ms-enclave/internal/cli"

func main() {
	cli.Execute()
}
