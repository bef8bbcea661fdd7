package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var (
		raw   bool
		start bool
	)
	cmd := &cobra.Command{
		Use:   "watch URL",
		Short: "Tail live snapshots from a running service",
		Long: `Connects to the simulator websocket and prints one line per phase change
and per completed call. URL may be the service base (http://host:8080) or the
full websocket address.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd.OutOrStdout(), args[0], raw, start)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print every message as received")
	cmd.Flags().BoolVar(&start, "start", false, "Start a call after connecting")
	return cmd
}

func wsURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/sim/ws"
	}
	return u.String(), nil
}

type watchMessage struct {
	Type    string `json:"type"`
	Phase   string `json:"phase"`
	Code    string `json:"code"`
	Detail  string `json:"detail"`
	Session *struct {
		ID string `json:"session_id"`
	} `json:"session"`
	Outcome *struct {
		SessionID string `json:"session_id"`
		Status    string `json:"status"`
		Template  string `json:"template_name"`
		Escalated bool   `json:"escalated"`
		Reason    string `json:"escalation_reason"`
		Conf      int    `json:"confidence"`
	} `json:"outcome"`
}

func watch(ctx context.Context, out io.Writer, target string, raw, start bool) error {
	addr, err := wsURL(target)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if start {
		if err := conn.WriteJSON(map[string]string{"type": "client_control", "action": "start"}); err != nil {
			return err
		}
	}

	lastPhase := ""
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if raw {
			fmt.Fprintln(out, string(data))
			continue
		}
		var msg watchMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "session_snapshot":
			if msg.Phase == lastPhase {
				continue
			}
			lastPhase = msg.Phase
			id := "-"
			if msg.Session != nil {
				id = msg.Session.ID
			}
			fmt.Fprintf(out, "%-22s phase=%s\n", id, msg.Phase)
		case "call_completed":
			if o := msg.Outcome; o != nil {
				result := "deflected"
				if o.Escalated {
					result = "escalated (" + o.Reason + ")"
				}
				fmt.Fprintf(out, "%-22s %s %s conf=%d%% %s\n", o.SessionID, o.Status, o.Template, o.Conf, result)
			}
		case "error_event":
			fmt.Fprintf(out, "error %s: %s\n", msg.Code, msg.Detail)
		}
	}
}
