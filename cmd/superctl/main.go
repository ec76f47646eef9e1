// superctl controls a running superres dashboard from the terminal.
//
//	superctl status
//	superctl tier gpu
//	superctl crop up|down
//	superctl notifications
//	superctl camera [preset]
//	superctl tail
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-superres/internal/httpc"
	"github.com/teslashibe/go-superres/pkg/web"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Dashboard base URL")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: superctl [-addr URL] status|tier <name>|crop up|down|notifications|camera [preset]|tail")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, strings.TrimRight(*addr, "/"), flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, base string, args []string) error {
	switch args[0] {
	case "status":
		var st web.Status
		if err := httpc.GetJSON(ctx, base+"/api/status", &st); err != nil {
			return err
		}
		printStatus(w, st)

	case "tier":
		if len(args) < 2 {
			return fmt.Errorf("tier: name required (cpu, gpu, npu)")
		}
		var st web.Status
		if err := httpc.PostJSON(ctx, base+"/api/tier/"+url.PathEscape(args[1]), nil, &st); err != nil {
			return err
		}
		printStatus(w, st)

	case "crop":
		if len(args) < 2 {
			return fmt.Errorf("crop: up or down required")
		}
		var path string
		switch args[1] {
		case "up", "+", "increment":
			path = "/api/crop/increment"
		case "down", "-", "decrement":
			path = "/api/crop/decrement"
		default:
			return fmt.Errorf("crop: unknown direction %q", args[1])
		}
		var st web.Status
		if err := httpc.PostJSON(ctx, base+path, nil, &st); err != nil {
			return err
		}
		printStatus(w, st)

	case "notifications":
		var notes []web.Notification
		if err := httpc.GetJSON(ctx, base+"/api/notifications", &notes); err != nil {
			return err
		}
		for _, n := range notes {
			printNotification(w, n)
		}

	case "camera":
		var cfg map[string]any
		var err error
		if len(args) > 1 {
			err = httpc.PostJSON(ctx, base+"/api/camera", map[string]any{"preset": args[1]}, &cfg)
		} else {
			err = httpc.GetJSON(ctx, base+"/api/camera", &cfg)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)

	case "tail":
		return tail(ctx, w, base)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

// wsURL turns the dashboard base URL into the websocket URL for path.
func wsURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// tail prints status and notification events until ctx is done.
func tail(ctx context.Context, w io.Writer, base string) error {
	target, err := wsURL(base, "/ws/status")
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	var lastSeq uint64
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		lastSeq, err = printEvent(w, data, lastSeq)
		if err != nil {
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// printEvent prints one websocket event. Status events for a result already
// shown are skipped; it returns the last printed sequence number.
func printEvent(w io.Writer, data []byte, lastSeq uint64) (uint64, error) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		return lastSeq, fmt.Errorf("bad event: %w", err)
	}
	switch ev.Type {
	case "status":
		var st web.Status
		if err := json.Unmarshal(ev.Data, &st); err != nil {
			return lastSeq, fmt.Errorf("bad status: %w", err)
		}
		if st.Last == nil || st.Last.Seq == lastSeq {
			return lastSeq, nil
		}
		printTelemetry(w, *st.Last)
		return st.Last.Seq, nil
	case "notification":
		var n web.Notification
		if err := json.Unmarshal(ev.Data, &n); err != nil {
			return lastSeq, fmt.Errorf("bad notification: %w", err)
		}
		printNotification(w, n)
	}
	return lastSeq, nil
}

func printStatus(w io.Writer, st web.Status) {
	fmt.Fprintf(w, "tier %s  crop %s\n", st.Tier, st.Crop)
	for _, t := range st.Tiers {
		line := fmt.Sprintf("  %-4s %s", t.Tier, t.State)
		if t.Error != "" {
			line += "  (" + t.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
	if st.Stats != nil {
		s := st.Stats
		fmt.Fprintf(w, "frames %d  processed %d  dropped %d  not-ready %d  failed %d  superseded %d\n",
			s.Received, s.Processed, s.Dropped, s.NotReady, s.Failed, s.Superseded)
	}
	if st.Last != nil {
		printTelemetry(w, *st.Last)
	}
}

func printTelemetry(w io.Writer, t web.Telemetry) {
	fmt.Fprintf(w, "#%d %s %s  infer %s  total %s\n", t.Seq, t.Tier, t.Crop, t.Inference, t.Total)
}

func printNotification(w io.Writer, n web.Notification) {
	icon := "ℹ️ "
	if n.Level == "error" {
		icon = "❌"
	}
	fmt.Fprintf(w, "%s %s [%s] %s\n", icon, n.Time.Format(time.TimeOnly), n.Tier, n.Message)
}
