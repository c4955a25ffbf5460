package progress

import (
	"encoding/json"
	"testing"
)

func TestPercentClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: -3, want: 0},
		{in: 0, want: 0},
		{in: 42.5, want: 42.5},
		{in: 100, want: 100},
		{in: 250, want: 100},
	}

	for _, tt := range tests {
		if got := Percent("s", tt.in).Percent; got != tt.want {
			t.Errorf("Percent(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if Log("s", "x").Terminal() || Percent("s", 1).Terminal() {
		t.Fatal("non-terminal event reported as terminal")
	}
	if !Success("/a.iso", "a.iso").Terminal() || !Failure("s", "m").Terminal() {
		t.Fatal("terminal event not reported as terminal")
	}
}

func TestEventJSONRoundTripRejectsUnknownKind(t *testing.T) {
	data, err := json.Marshal(Failure("configuration", "bad config"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != KindFailure || e.Stage != "configuration" || e.Message != "bad config" {
		t.Fatalf("decoded %+v", e)
	}

	if err := json.Unmarshal([]byte(`{"kind":"bogus"}`), &e); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestPercentEncodesZero(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Percent("asset-acquisition", 0), `{"kind":"percent","stage":"asset-acquisition","percent":0}`},
		{Percent("asset-acquisition", 42.5), `{"kind":"percent","stage":"asset-acquisition","percent":42.5}`},
		{Log("configuration", "ok"), `{"kind":"log","stage":"configuration","text":"ok"}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.event)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.event, err)
		}
		if string(data) != tt.want {
			t.Errorf("marshal %v = %s, want %s", tt.event, data, tt.want)
		}
	}

	var e Event
	if err := json.Unmarshal([]byte(`{"kind":"percent","stage":"asset-acquisition","percent":0}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e != Percent("asset-acquisition", 0) {
		t.Fatalf("decoded %+v", e)
	}
}

func TestReporterTagsStage(t *testing.T) {
	var rec Recorder
	r := NewReporter(&rec, "asset-acquisition")

	r.Percent(10)
	r.Logf("fetched %d bytes", 5)

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	for _, e := range events {
		if e.Stage != "asset-acquisition" {
			t.Errorf("stage = %q", e.Stage)
		}
	}
	if events[1].Text != "fetched 5 bytes" {
		t.Errorf("text = %q", events[1].Text)
	}
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	c := NewChannel(1)
	c.Send(Log("s", "x"))
	c.Close()
	c.Close()

	var n int
	for range c.Events() {
		n++
	}
	if n != 1 {
		t.Fatalf("received %d events, want 1", n)
	}
}
