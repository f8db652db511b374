package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"talkbridge/pkg/channel/talk"
)

var (
	probeURL     string
	probeSecret  string
	probeRoom    string
	probeSender  string
	probeMessage string
)

// probeCmd sends one correctly signed synthetic Create event at a running
// bridge, as an operator smoke test for webhook wiring and the shared secret.
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send a signed test event to a running bridge",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		secret := strings.TrimSpace(probeSecret)
		if secret == "" {
			secret = strings.TrimSpace(os.Getenv("TALK_BOT_SECRET"))
		}
		if secret == "" {
			fmt.Println("a bot secret is required (--secret or TALK_BOT_SECRET)")
			return
		}

		body, err := json.Marshal(map[string]any{
			"type":   "Create",
			"actor":  map[string]string{"type": "users", "id": probeSender, "displayName": probeSender},
			"object": map[string]string{"type": "comment", "id": "1", "content": probeMessage, "mediaType": "text/markdown"},
			"target": map[string]string{"type": "room", "id": probeRoom, "name": "Probe Room"},
		})
		if err != nil {
			fmt.Printf("failed to build payload: %v\n", err)
			return
		}

		nonce, err := talk.NewNonce()
		if err != nil {
			fmt.Printf("failed to generate nonce: %v\n", err)
			return
		}

		req, err := http.NewRequest(http.MethodPost, probeURL, bytes.NewReader(body))
		if err != nil {
			fmt.Printf("failed to build request: %v\n", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Nextcloud-Talk-Random", nonce)
		req.Header.Set("X-Nextcloud-Talk-Signature", talk.Sign(secret, nonce, body))

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("probe request failed: %v\n", err)
			return
		}
		defer resp.Body.Close()

		reply, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		fmt.Printf("status: %s\nbody: %s\n", resp.Status, strings.TrimSpace(string(reply)))
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeURL, "url", "http://localhost:18790/webhook/nextcloud_talk", "webhook URL of the running bridge")
	probeCmd.Flags().StringVar(&probeSecret, "secret", "", "shared bot secret (defaults to TALK_BOT_SECRET)")
	probeCmd.Flags().StringVar(&probeRoom, "room", "testtoken123", "conversation token for the synthetic event")
	probeCmd.Flags().StringVar(&probeSender, "sender", "testuser1", "actor id for the synthetic event")
	probeCmd.Flags().StringVar(&probeMessage, "message", "Hello bot! What can you do?", "message content for the synthetic event")
	rootCmd.AddCommand(probeCmd)
}
