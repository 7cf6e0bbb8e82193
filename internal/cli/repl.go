package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl [sandbox-id]",
	Short: "Start an interactive shell_executor session against a sandbox",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]

		u, err := url.Parse(apiURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid api-url: %v\n", err)
			os.Exit(1)
		}
		u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
		u.Path = fmt.Sprintf("/sandboxes/%s/interact", id)

		fmt.Printf("connecting to %s...\n", u.String())

		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()

		fmt.Println("connected. type a command per line; ctrl+c to exit.")

		done := make(chan struct{})
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)

		go func() {
			defer close(done)
			for {
				_, message, err := conn.ReadMessage()
				if err != nil {
					fmt.Printf("\nconnection closed: %v\n", err)
					return
				}
				fmt.Print(string(message))
			}
		}()

		go func() {
			buf := make([]byte, 4096)
			for {
				n, err := os.Stdin.Read(buf)
				if err != nil {
					if err != io.EOF {
						fmt.Printf("\nread error: %v\n", err)
					}
					return
				}
				if n > 0 {
					if err := conn.WriteMessage(websocket.TextMessage, buf[:n]); err != nil {
						fmt.Printf("\nwrite error: %v\n", err)
						return
					}
				}
			}
		}()

		select {
		case <-done:
			return
		case <-interrupt:
			fmt.Println("interrupt received, closing...")
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(replCmd)
}
