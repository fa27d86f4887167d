// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()
	value := map[string]uint64{"tiles_stored": 4, "leases_outstanding": 1}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding produced different bytes:\n%x\n%x", first, second)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	t.Parallel()
	type progress struct {
		Level     uint32 `cbor:"level"`
		Total     uint64 `cbor:"total"`
		Completed uint64 `cbor:"completed"`
	}
	want := progress{Level: 4, Total: 16, Completed: 9}

	data, err := Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got progress
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("round trip: got %+v, want %+v", got, want)
	}
}

func TestUnmarshalIntoAnyUsesStringKeys(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]int{"uptime_seconds": 12})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got any
	if err := Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := got.(map[string]any); !ok {
		t.Errorf("decoded type %T, want map[string]any", got)
	}
}
