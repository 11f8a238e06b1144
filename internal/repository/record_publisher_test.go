package repository

import (
	"database/sql"
	"testing"
)

func TestNewKafkaPublisherDefaultsTopic(t *testing.T) {
	if p := NewKafkaPublisher(nil, ""); p.topic != DefaultUpdatesTopic {
		t.Fatalf("expected %s, got %s", DefaultUpdatesTopic, p.topic)
	}
	if err := NewKafkaPublisher(nil, "x").Close(); err != nil {
		t.Fatalf("closing without a producer: %v", err)
	}
}

func TestNullableFloat(t *testing.T) {
	if nullable(sql.NullFloat64{}) != nil {
		t.Fatalf("invalid value should map to nil")
	}
	if v := nullable(sql.NullFloat64{Float64: 2.5, Valid: true}); v == nil || *v != 2.5 {
		t.Fatalf("unexpected value %v", v)
	}
}
