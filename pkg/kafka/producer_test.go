package kafka

import (
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
)

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestMessageEncodesStructsAsJSON(t *testing.T) {
	p := &Producer{clientID: "test"}
	msg, err := p.message("market.updates", []byte("AAPL"), map[string]float64{"price": 187.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]float64
	if err := json.Unmarshal(msg.Value, &got); err != nil || got["price"] != 187.5 {
		t.Fatalf("unexpected payload %s", msg.Value)
	}
	if string(msg.Key) != "AAPL" || msg.Topic != "market.updates" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if header(msg, HeaderContentType) != "application/json" || header(msg, HeaderProducer) != "test" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
}

func TestMessagePassesRawBytesThrough(t *testing.T) {
	p := &Producer{clientID: "test"}
	msg, err := p.message("t", nil, []byte{0x1, 0x2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Value) != 2 || header(msg, HeaderContentType) != "application/octet-stream" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestMessageRejectsUnencodable(t *testing.T) {
	p := &Producer{}
	if _, err := p.message("t", nil, make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]kafka.Compression{
		"gzip":   kafka.Gzip,
		"snappy": kafka.Snappy,
		"zstd":   kafka.Zstd,
		"none":   0,
		"bogus":  kafka.Snappy,
	}
	for in, want := range cases {
		if got := parseCompression(in); got != want {
			t.Fatalf("%s: want %v, got %v", in, want, got)
		}
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(WithCompression("gzip")); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
