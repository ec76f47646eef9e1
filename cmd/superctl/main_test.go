package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-superres/pkg/executor"
	"github.com/teslashibe/go-superres/pkg/pipeline"
	"github.com/teslashibe/go-superres/pkg/settings"
	"github.com/teslashibe/go-superres/pkg/web"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws/status"},
		{"https://pi.local", "wss://pi.local/ws/status"},
		{"http://host:1/prefix/", "ws://host:1/prefix/ws/status"},
	}
	for _, tc := range tests {
		got, err := wsURL(tc.base, "/ws/status")
		if err != nil {
			t.Fatalf("wsURL(%q): %v", tc.base, err)
		}
		if got != tc.want {
			t.Errorf("wsURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func statusEvent(t *testing.T, seq uint64) []byte {
	t.Helper()
	st := web.Status{
		Tier: executor.TierNPU,
		Crop: settings.Crop(96),
		Last: &web.Telemetry{Seq: seq, Tier: executor.TierNPU, Crop: 96, Inference: "8.50 ms", Total: "10.50 ms"},
	}
	data, err := json.Marshal(web.Event{Type: "status", Data: st})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer

	last, err := printEvent(&buf, statusEvent(t, 7), 0)
	if err != nil || last != 7 {
		t.Fatalf("printEvent = %d, %v", last, err)
	}
	if got := buf.String(); got != "#7 npu 96x96  infer 8.50 ms  total 10.50 ms\n" {
		t.Errorf("output = %q", got)
	}

	buf.Reset()
	last, _ = printEvent(&buf, statusEvent(t, 7), last)
	if buf.Len() != 0 || last != 7 {
		t.Errorf("repeated result printed: %q", buf.String())
	}

	note, _ := json.Marshal(web.Event{Type: "notification", Data: web.Notification{
		Level: "error", Tier: executor.TierGPU, Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Message: "Error initializing models: no OpenCL device",
	}})
	buf.Reset()
	if _, err := printEvent(&buf, note, last); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); !strings.Contains(got, "[gpu] Error initializing models: no OpenCL device") {
		t.Errorf("notification output = %q", got)
	}

	if _, err := printEvent(&buf, []byte("not json"), last); err == nil {
		t.Error("bad event accepted")
	}
}

func TestRun_TierAndCrop(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		st := web.Status{
			Tier: executor.TierGPU,
			Crop: settings.Crop(64),
			Tiers: []executor.TierStatus{
				{Tier: executor.TierCPU, State: executor.StateReady},
				{Tier: executor.TierGPU, State: executor.StateFailed, Error: "no OpenCL device"},
			},
			Stats: &pipeline.Stats{Received: 3, Processed: 2, Dropped: 1},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	ctx := context.Background()
	if err := run(ctx, &buf, srv.URL, []string{"tier", "gpu"}); err != nil {
		t.Fatalf("tier: %v", err)
	}
	if err := run(ctx, &buf, srv.URL, []string{"crop", "down"}); err != nil {
		t.Fatalf("crop: %v", err)
	}

	want := []string{"POST /api/tier/gpu", "POST /api/crop/decrement"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", paths, want)
	}
	out := buf.String()
	for _, s := range []string{"tier gpu  crop 64x64", "gpu  failed  (no OpenCL device)", "frames 3  processed 2  dropped 1"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestRun_BadArgs(t *testing.T) {
	for _, args := range [][]string{{"tier"}, {"crop"}, {"crop", "sideways"}, {"reboot"}} {
		if err := run(context.Background(), &bytes.Buffer{}, "http://127.0.0.1:1", args); err == nil {
			t.Errorf("run(%v) succeeded", args)
		}
	}
}
