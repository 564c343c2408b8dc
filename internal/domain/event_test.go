package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestParseDomainEvent(t *testing.T) {
	t.Run("Valid event", func(t *testing.T) {
		body := []byte(`{"eventType":"placement.completed","data":{"placement_id":42,"recruiter_id":"r-1","company_id":"c-9","fee_amount":1500.5},"timestamp":"2026-10-14T09:15:00Z"}`)

		ev, err := ParseDomainEvent(body)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ev.EventType != "placement.completed" {
			t.Errorf("unexpected event type %q", ev.EventType)
		}
		want := time.Date(2026, 10, 14, 9, 15, 0, 0, time.UTC)
		if !ev.Timestamp.Equal(want) {
			t.Errorf("expected timestamp %v, got %v", want, ev.Timestamp)
		}
		p, ok := ev.Payload.(*PlacementPayload)
		if !ok {
			t.Fatalf("expected *PlacementPayload, got %T", ev.Payload)
		}
		if p.PlacementID != "42" || p.FeeAmount != 1500.5 {
			t.Errorf("unexpected payload %+v", p)
		}
		if got := p.RecruiterIDs(); !reflect.DeepEqual(got, []string{"r-1"}) {
			t.Errorf("unexpected recruiter ids %v", got)
		}
	})

	malformed := map[string]string{
		"Not JSON":           `this is not json`,
		"Missing eventType":  `{"data":{}}`,
		"Data is not object": `{"eventType":"job.created","data":[1,2,3]}`,
		"Truncated":          `{"eventType":"job.created","data":{`,
	}
	for name, body := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDomainEvent([]byte(body))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}

	t.Run("Unknown family uses generic payload", func(t *testing.T) {
		ev, err := ParseDomainEvent([]byte(`{"eventType":"invoice.paid","data":{"recruiter_ids":["a","b","a"]}}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		g, ok := ev.Payload.(*GenericPayload)
		if !ok {
			t.Fatalf("expected *GenericPayload, got %T", ev.Payload)
		}
		if g.Family() != "invoice" {
			t.Errorf("unexpected family %q", g.Family())
		}
		if got := g.RecruiterIDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
			t.Errorf("unexpected recruiter ids %v", got)
		}
	})

	t.Run("Mistyped known payload falls back to generic", func(t *testing.T) {
		ev, err := ParseDomainEvent([]byte(`{"eventType":"placement.created","data":{"fee_amount":"lots"}}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := ev.Payload.(*GenericPayload); !ok {
			t.Errorf("expected *GenericPayload, got %T", ev.Payload)
		}
	})
}

func TestToStoredEvent(t *testing.T) {
	received := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	ev := DomainEvent{
		EventType: "application.created",
		Data: map[string]any{
			"job_id":         float64(7),
			"application_id": nil,
			"candidate_id":   "cand-1",
			"user_id":        "u-1",
			"user_role":      "recruiter",
			"company_id":     "c-1",
		},
	}

	se := ev.ToStoredEvent("evt-1", received)

	if se.EntityType != "application" {
		t.Errorf("expected entity type application, got %q", se.EntityType)
	}
	if se.EntityID != "7" {
		t.Errorf("expected entity id from job_id, got %q", se.EntityID)
	}
	if se.OrganizationID != "c-1" {
		t.Errorf("expected organization from company_id, got %q", se.OrganizationID)
	}
	if se.UserID != "u-1" || se.UserRole != "recruiter" {
		t.Errorf("unexpected user fields %q/%q", se.UserID, se.UserRole)
	}
	if !se.CreatedAt.Equal(received) || !se.OccurredAt.Equal(received) {
		t.Errorf("expected receive time when timestamp missing, got %v / %v", se.CreatedAt, se.OccurredAt)
	}
	se.Metadata["job_id"] = "mutated"
	if ev.Data["job_id"] == "mutated" {
		t.Error("metadata must be a copy of the event data")
	}

	t.Run("Receive time drives created_at", func(t *testing.T) {
		produced := received.Add(-5 * time.Hour)
		late := DomainEvent{EventType: "application.created", Data: map[string]any{}, Timestamp: produced}
		se := late.ToStoredEvent("evt-late", received)
		if !se.CreatedAt.Equal(received) {
			t.Errorf("expected created_at %v, got %v", received, se.CreatedAt)
		}
		if !se.OccurredAt.Equal(produced) {
			t.Errorf("expected occurred_at %v, got %v", produced, se.OccurredAt)
		}
	})
}

func TestEntityType(t *testing.T) {
	cases := map[string]string{
		"placement.completed": "placement",
		"job.status.changed":  "job",
		"heartbeat":           "heartbeat",
		".leading":            "",
	}
	for in, want := range cases {
		if got := EntityType(in); got != want {
			t.Errorf("EntityType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEventID(t *testing.T) {
	body := []byte(`{"eventType":"job.created"}`)
	if got := EventID("msg-1", body); got != "msg-1" {
		t.Errorf("expected broker message id, got %q", got)
	}
	a, b := EventID("", body), EventID("", body)
	if a == "" || a != b {
		t.Errorf("expected a stable derived id, got %q and %q", a, b)
	}
	if EventID("", []byte(`{"eventType":"job.closed"}`)) == a {
		t.Error("different bodies must derive different ids")
	}
}

func TestTimeBucketTruncate(t *testing.T) {
	ts := time.Date(2026, 3, 17, 13, 45, 12, 99, time.FixedZone("X", 2*3600))
	tests := []struct {
		bucket TimeBucket
		want   time.Time
	}{
		{BucketHour, time.Date(2026, 3, 17, 11, 0, 0, 0, time.UTC)},
		{BucketDay, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)},
		{BucketMonth, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := tt.bucket.Truncate(ts); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.bucket, got, tt.want)
		}
	}
}

func TestMarshalDomainEvent(t *testing.T) {
	at := time.Date(2026, 10, 14, 9, 15, 0, 0, time.UTC)
	body, err := MarshalDomainEvent("placement.created", map[string]any{"placement_id": "p-1", "fee_amount": 1200.0}, at)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ev, err := ParseDomainEvent(body)
	if err != nil {
		t.Fatalf("expected the encoded event to parse, got %v", err)
	}
	if ev.EventType != "placement.created" || !ev.Timestamp.Equal(at) || ev.Data["placement_id"] != "p-1" {
		t.Errorf("unexpected event %+v", ev)
	}
}
