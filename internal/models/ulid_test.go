package models

import "testing"

func TestNewIDMonotonic(t *testing.T) {
	a := NewID()
	b := NewID()
	if a.String() == b.String() {
		t.Fatal("expected distinct IDs")
	}
	if b.ULID.Compare(a.ULID) <= 0 {
		t.Fatal("expected monotonically increasing IDs")
	}
}

func TestParseIDRoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if parsed.String() != id.String() {
		t.Fatalf("round trip mismatch: %s != %s", parsed, id)
	}
}

func TestParseIDInvalid(t *testing.T) {
	if _, err := ParseID("not-a-ulid"); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

func TestIDJSON(t *testing.T) {
	id := NewID()
	data, err := id.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var got ID
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if got.String() != id.String() {
		t.Fatalf("JSON round trip mismatch: %s != %s", got, id)
	}
}

func TestIDScanValue(t *testing.T) {
	id := NewID()
	v, err := id.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var got ID
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.String() != id.String() {
		t.Fatalf("Scan/Value round trip mismatch: %s != %s", got, id)
	}
}

func TestIDScanNil(t *testing.T) {
	var id ID
	if err := id.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !id.IsZero() {
		t.Fatal("expected zero ID after Scan(nil)")
	}
}

func TestZeroIDValueIsNil(t *testing.T) {
	var id ID
	v, err := id.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil value for zero ID, got %v", v)
	}
}
