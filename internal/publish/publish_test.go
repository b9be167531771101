package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
)

type fakeClient struct {
	published  map[string][][]byte
	lists      map[string][][]byte
	trimStop   int64
	publishErr error
	pushErr    error
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: map[string][][]byte{}, lists: map[string][][]byte{}}
}

func (f *fakeClient) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	f.published[channel] = append(f.published[channel], message.([]byte))
	return redis.NewIntResult(1, nil)
}

func (f *fakeClient) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.lists[key] = append([][]byte{v.([]byte)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeClient) LTrim(_ context.Context, _ string, _, stop int64) *redis.StatusCmd {
	f.trimStop = stop
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestPublishWritesChannelAndHistory(t *testing.T) {
	fc := newFakeClient()
	p := newPublisher(fc, "labctl:results", nil)

	res := frame.Result{Command: "position", Kind: command.KindReport, Type: frame.ValueInteger, Int: 3, Raw: []byte{0xCC, 0x00}}
	msg := NewMessage("selector", 0, res, 12500*time.Microsecond, nil)
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := fc.published["labctl:results"]
	if len(got) != 1 {
		t.Fatalf("published %d messages, want 1", len(got))
	}
	var decoded map[string]any
	if err := json.Unmarshal(got[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["device"] != "selector" || decoded["command"] != "position" || decoded["value"] != float64(3) {
		t.Fatalf("message = %v", decoded)
	}
	if decoded["rtt_ms"] != 12.5 || decoded["raw_hex"] != "CC 00" {
		t.Fatalf("message = %v", decoded)
	}
	if len(fc.lists[HistoryKey("selector")]) != 1 || fc.trimStop != HistoryLimit-1 {
		t.Fatalf("history not maintained: %v stop=%d", fc.lists, fc.trimStop)
	}
}

func TestPublishErrorMessage(t *testing.T) {
	msg := NewMessage("valves", 2, frame.Result{Command: "open"}, 0, errors.New("timeout"))
	if msg.Error != "timeout" || msg.Type != "" || msg.Value != nil {
		t.Fatalf("error message = %+v", msg)
	}
	if msg.Target != 2 {
		t.Fatalf("target = %d", msg.Target)
	}
}

func TestPublishFailures(t *testing.T) {
	fc := newFakeClient()
	fc.publishErr = errors.New("connection refused")
	p := newPublisher(fc, "ch", nil)
	if err := p.Publish(context.Background(), Message{Device: "d"}); err == nil {
		t.Fatalf("expected publish error")
	}

	fc = newFakeClient()
	fc.pushErr = errors.New("WRONGTYPE")
	p = newPublisher(fc, "ch", nil)
	if err := p.Publish(context.Background(), Message{Device: "d"}); err != nil {
		t.Fatalf("history failure should not fail publish: %v", err)
	}
	if len(fc.published["ch"]) != 1 {
		t.Fatalf("message should still be published")
	}
}

func TestClose(t *testing.T) {
	var nilPub *Publisher
	if err := nilPub.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
	fc := newFakeClient()
	if err := newPublisher(fc, "ch", nil).Close(); err != nil || !fc.closed {
		t.Fatalf("Close did not close client")
	}
}
