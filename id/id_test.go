package id_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aliendabz/evalqueue/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
		{"EventID", id.NewEventID, "evt_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseJobID(t *testing.T) {
	original := id.NewJobID()
	parsed, err := id.ParseJobID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed, original)
	}

	if _, err := id.ParseJobID(id.NewSubscriptionID().String()); !errors.Is(err, id.ErrWrongPrefix) {
		t.Errorf("ParseJobID(sub_...) err = %v, want ErrWrongPrefix", err)
	}
	if _, err := id.ParseSubscriptionID(original.String()); err == nil {
		t.Error("expected ParseSubscriptionID to reject a job_ id")
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "job_", "not an id", "job_!!!"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type wrapper struct {
		ID id.JobID `json:"id"`
	}

	original := wrapper{ID: id.NewJobID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored wrapper
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored.ID.String() != original.ID.String() {
		t.Errorf("mismatch: %q != %q", restored.ID, original.ID)
	}

	var empty wrapper
	if err := json.Unmarshal([]byte(`{"id":""}`), &empty); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if !empty.ID.IsNil() {
		t.Error("expected nil ID after unmarshalling empty string")
	}
}
