// chatctl is a console client for a campuschat relay instance: publish
// events, follow the live stream, and compare clocks with the server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:     "chatctl",
		Short:   "Console client for a campuschat relay instance",
		Example: "chatctl send --author alice \"hello everyone\"",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "base URL of the relay instance")

	cmd.AddCommand(
		newSendCommand(&serverURL),
		newStreamCommand(&serverURL),
		newTimeCommand(&serverURL),
	)
	return cmd
}

func newSendCommand(serverURL *string) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Publish a chat message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{
				"kind":    "chat",
				"author":  author,
				"payload": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Post(*serverURL+"/chat/send", "application/json", bytes.NewReader(body))
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				var apiErr struct {
					Error string `json:"error"`
				}
				_ = json.NewDecoder(resp.Body).Decode(&apiErr)
				return fmt.Errorf("server rejected message: %s", apiErr.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&author, "author", "Anon", "display name attached to the message")
	return cmd
}

func newStreamCommand(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Follow the live event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, *serverURL+"/chat/stream", nil)
			if err != nil {
				return err
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("stream returned status %s", resp.Status)
			}

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				data, ok := strings.CutPrefix(line, "data: ")
				if !ok {
					continue
				}

				var ev struct {
					Type     string `json:"type"`
					User     string `json:"user"`
					Text     string `json:"text"`
					Filename string `json:"filename"`
					SenderIP string `json:"sender_ip"`
				}
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					continue
				}

				from := ev.User
				if ev.SenderIP != "" {
					from += "@" + ev.SenderIP
				}
				if ev.Type == "image" {
					fmt.Printf("%s posted image %s\n", from, ev.Filename)
				} else {
					fmt.Printf("%s: %s\n", from, ev.Text)
				}
			}
			return scanner.Err()
		},
	}
}

func newTimeCommand(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Compare the local clock with the server's",
		RunE: func(_ *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(*serverURL + "/time")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			var payload struct {
				ISO string `json:"iso"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return err
			}

			serverTime, err := time.Parse(time.RFC3339, payload.ISO)
			if err != nil {
				return err
			}

			local := time.Now()
			diff := local.Sub(serverTime)
			fmt.Println("Server:", serverTime.Format(time.RFC3339))
			fmt.Println("Local: ", local.Format(time.RFC3339))
			switch {
			case diff > time.Second:
				fmt.Printf("Local clock is %.2fs ahead.\n", diff.Seconds())
			case diff < -time.Second:
				fmt.Printf("Local clock is %.2fs behind.\n", (-diff).Seconds())
			default:
				fmt.Println("Clocks agree.")
			}
			return nil
		},
	}
}
