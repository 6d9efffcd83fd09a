package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/YumeNoTenshi/ecoscan/internal/models"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var out kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Close() { f.closed = true }

func TestKafkaPublisherWritesKeyedEvent(t *testing.T) {
	fake := &fakeProducer{}
	p := newKafkaPublisher(fake, "ecoscan.history", nil)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	rec := models.HistoryRecord{ID: "rec-1", Name: "Scan_2024-05-01_7", CarbonOffsetPercent: 42}
	if err := p.PublishHistorySaved(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if len(fake.records) != 1 {
		t.Fatalf("records = %d", len(fake.records))
	}
	got := fake.records[0]
	if got.Topic != "ecoscan.history" || string(got.Key) != "rec-1" {
		t.Errorf("topic %q key %q", got.Topic, got.Key)
	}

	var ev Event
	if err := json.Unmarshal(got.Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != TypeHistorySaved || ev.Record.Name != rec.Name || ev.Record.CarbonOffsetPercent != 42 {
		t.Errorf("event = %+v", ev)
	}

	p.Close()
	if !fake.closed {
		t.Error("client not closed")
	}
}

func TestKafkaPublisherReturnsProduceError(t *testing.T) {
	fake := &fakeProducer{err: errors.New("broker unavailable")}
	p := newKafkaPublisher(fake, "t", nil)
	if err := p.PublishHistorySaved(context.Background(), models.HistoryRecord{ID: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.PublishHistorySaved(context.Background(), models.HistoryRecord{}); err != nil {
		t.Fatal(err)
	}
	p.Close()
}
