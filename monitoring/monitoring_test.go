package monitoring

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"loanapproval/ml"
)

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		epoch, planned, want int
	}{
		{0, 50, 2},
		{24, 50, 50},
		{49, 50, 100},
		{60, 50, 100},
		{0, 0, 0},
		{2, 3, 100},
	}
	for _, tc := range cases {
		if got := ProgressPercent(tc.epoch, tc.planned); got != tc.want {
			t.Fatalf("ProgressPercent(%d, %d) = %d, want %d", tc.epoch, tc.planned, got, tc.want)
		}
	}
}

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter(MetricPredictionsServed, 1)
	mc.IncrCounter(MetricPredictionsServed, 2)
	mc.SetGauge(MetricValAccuracy, 0.8)
	mc.SetGauge(MetricValAccuracy, 0.9)

	if v, ok := mc.Latest(MetricPredictionsServed); !ok || v != 3 {
		t.Fatalf("expected counter 3, got %v", v)
	}
	history, err := mc.GetMetric(MetricValAccuracy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 || history[1].Value != 0.9 {
		t.Fatalf("unexpected history %+v", history)
	}
	if _, err := mc.GetMetric("nope"); err == nil {
		t.Fatalf("expected error for unknown metric")
	}

	for i := 0; i < maxHistory+10; i++ {
		mc.SetGauge("bounded", float64(i))
	}
	history, _ = mc.GetMetric("bounded")
	if len(history) != maxHistory {
		t.Fatalf("expected bounded history, got %d", len(history))
	}

	text := mc.ExportPrometheus()
	if !strings.Contains(text, "predictions_served_total 3\n") {
		t.Fatalf("unexpected export:\n%s", text)
	}
	if !strings.Contains(text, "# TYPE validation_accuracy gauge") {
		t.Fatalf("missing type line:\n%s", text)
	}
}

func TestProgressHubDeliversEvents(t *testing.T) {
	hub := NewProgressHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	if err := hub.Publish(TrainingEvent{Type: EventStarted, RunID: "r1", TotalEpochs: 50, Timestamp: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() (Message, TrainingEvent) {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		var event TrainingEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return msg, event
	}

	// latest event is replayed on connect
	msg, event := read()
	if msg.Type != string(EventStarted) || event.RunID != "r1" {
		t.Fatalf("unexpected replay %+v", event)
	}

	if err := hub.Publish(EpochEvent("r1", 4, 50, ml.EpochLogs{ValAccuracy: 0.75})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_, event = read()
	if event.Type != EventEpoch || event.Percent != 10 || event.Logs == nil || event.Logs.ValAccuracy != 0.75 {
		t.Fatalf("unexpected epoch event %+v", event)
	}
}
