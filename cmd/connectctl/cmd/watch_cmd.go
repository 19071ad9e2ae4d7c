package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/lyzr/connected/common/device"
	"github.com/lyzr/connected/common/uploader"
)

var (
	watchSession    string
	watchSubscriber string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "print transfer events as they happen",
	Long:  `subscribe to a pairing session, or to your own transfers when no session is given, and print every event`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _ := connect(cmd)
		cfg := clientConfig()

		subscriberID := watchSubscriber
		if subscriberID == "" {
			subscriberID = uuid.NewString()
		}
		wsURL, err := client.WebSocketURL(watchSession, subscriberID)
		if err != nil {
			return err
		}

		header := http.Header{}
		if cfg.UserID != "" {
			header.Set("X-User-ID", cfg.UserID)
		}
		if cfg.Token != "" {
			header.Set("Authorization", "Bearer "+cfg.Token)
		}

		conn, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, header)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("subscribe failed: %s", resp.Status)
			}
			return fmt.Errorf("subscribe failed: %w", err)
		}
		defer conn.Close()

		hello, err := json.Marshal(map[string]interface{}{
			"type": "presence",
			"info": device.Capture().Descriptor(),
		})
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, hello)
		}

		done := make(chan os.Signal, 1)
		signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(done)
		go func() {
			<-done
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}()

		fmt.Fprintf(os.Stderr, "watching as %s, ctrl-c to stop\n", subscriberID)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return nil
				}
				select {
				case <-done:
					return nil
				default:
				}
				return fmt.Errorf("connection lost: %w", err)
			}
			printFrame(message)
		}
	},
}

// printFrame renders one server frame on a single line
func printFrame(message []byte) {
	frame := gjson.ParseBytes(message)
	stamp := time.Now().Format(time.TimeOnly)

	switch frame.Get("type").String() {
	case "transfer":
		t := frame.Get("transfer")
		line := fmt.Sprintf("%s %-7s %s %s from %s",
			stamp,
			frame.Get("event").String(),
			t.Get("type").String(),
			t.Get("id").String(),
			t.Get("sender_id").String(),
		)
		switch {
		case t.Get("content").Exists():
			line += ": " + t.Get("content").String()
		case t.Get("file_name").Exists():
			line += fmt.Sprintf(": %s (%s) %s",
				t.Get("file_name").String(),
				uploader.FormatSize(t.Get("file_size").Int()),
				t.Get("file_url").String(),
			)
		}
		fmt.Println(line)
	case "presence":
		names := []string{}
		frame.Get("subscribers.#.id").ForEach(func(_, v gjson.Result) bool {
			names = append(names, v.String())
			return true
		})
		fmt.Printf("%s online  %d %v\n", stamp, frame.Get("count").Int(), names)
	default:
		fmt.Printf("%s %s\n", stamp, string(message))
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchSession, "session", "", "pairing session key")
	watchCmd.Flags().StringVar(&watchSubscriber, "id", "", "subscriber id; reusing one replaces the older subscription")
}
