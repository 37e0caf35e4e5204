// SPDX-License-Identifier: MIT
package sysex

import (
	"bytes"
	"testing"
)

func TestEventBuildRoundTrip(t *testing.T) {
	ev := Event{
		DeviceID: Broadcast,
		ModelID:  0x12,
		Command:  0x34,
		Payload:  []byte{0x01, 0x02, 0x7f, 0x00},
	}

	wire := ev.Build()

	if wire[0] != Start {
		t.Fatalf("wire[0] = %#x, want Start", wire[0])
	}
	if wire[len(wire)-1] != End {
		t.Fatalf("wire[last] = %#x, want End", wire[len(wire)-1])
	}
	if !bytes.Equal(wire[1:4], VendorTag[:]) {
		t.Fatalf("vendor tag = % x, want % x", wire[1:4], VendorTag)
	}

	events := Scan(wire)
	if len(events) != 1 {
		t.Fatalf("Scan found %d events, want 1", len(events))
	}

	got := events[0]
	if got.DeviceID != ev.DeviceID || got.ModelID != ev.ModelID || got.Command != ev.Command {
		t.Fatalf("Scan(Build(ev)) header = %+v, want %+v", got, ev)
	}
	if !bytes.Equal(got.Payload, ev.Payload) {
		t.Fatalf("Scan(Build(ev)) payload = % x, want % x", got.Payload, ev.Payload)
	}
}

func TestScanSkipsWrongVendor(t *testing.T) {
	wrong := []byte{Start, 0x00, 0x00, 0x01, 0x7f, 0x01, 0x02, End}
	events := Scan(wrong)
	if len(events) != 0 {
		t.Fatalf("Scan found %d events for wrong vendor tag, want 0", len(events))
	}
}

func TestScanSkipsNonF7Terminator(t *testing.T) {
	// A status byte other than 0xf7 ends the event; it should be dropped,
	// and scanning should resume cleanly afterwards.
	good := Event{DeviceID: 0x7f, ModelID: 0x01, Command: 0x34, Payload: []byte{0x10}}.Build()
	bad := append([]byte{Start}, VendorTag[:]...)
	bad = append(bad, 0x7f, 0x01, 0x34, 0x10, 0xf8)

	stream := append(bad, good...)
	events := Scan(stream)

	if len(events) != 1 {
		t.Fatalf("Scan found %d events, want 1 (the well-formed one)", len(events))
	}
}

func TestScanMultipleEvents(t *testing.T) {
	a := Event{DeviceID: 0x7f, ModelID: 0x01, Command: 0x34, Payload: []byte{0x01, 0x02}}.Build()
	b := Event{DeviceID: 0x7f, ModelID: 0x01, Command: 0x34, Payload: []byte{0x03, 0x04}}.Build()

	events := Scan(append(a, b...))
	if len(events) != 2 {
		t.Fatalf("Scan found %d events, want 2", len(events))
	}
	if !bytes.Equal(events[0].Payload, []byte{0x01, 0x02}) {
		t.Fatalf("first event payload = % x", events[0].Payload)
	}
	if !bytes.Equal(events[1].Payload, []byte{0x03, 0x04}) {
		t.Fatalf("second event payload = % x", events[1].Payload)
	}
}

func TestLooksLikeSysEx(t *testing.T) {
	ev := Event{DeviceID: 0x7f, ModelID: 0x01, Command: 0x34, Payload: []byte{0x01, 0x7f, 0x00}}.Build()
	if !LooksLikeSysEx(ev) {
		t.Fatal("well-formed sysex event not recognised")
	}

	raw := bytes.Repeat([]byte{0x00, 0xaa, 0xff}, 100)
	if LooksLikeSysEx(raw) {
		t.Fatal("raw binary data incorrectly recognised as sysex")
	}
}

func TestLooksLikeSysExAcceptsConcatenatedEvents(t *testing.T) {
	a := Event{DeviceID: 0x7f, ModelID: 0x01, Command: 0x34, Payload: []byte{0x01, 0x02}}.Build()
	b := Event{DeviceID: 0x7f, ModelID: 0x01, Command: 0x34, Payload: []byte{0x03, 0x04}}.Build()

	stream := append(a, b...)
	if !LooksLikeSysEx(stream) {
		t.Fatal("a capture of multiple concatenated events should still look like sysex")
	}
}

func TestScanTruncatedEventYieldsNothing(t *testing.T) {
	truncated := append([]byte{Start}, VendorTag[:]...)
	truncated = append(truncated, 0x7f, 0x01, 0x34, 0x10)
	// no terminator at all

	events := Scan(truncated)
	if len(events) != 0 {
		t.Fatalf("Scan found %d events for truncated stream, want 0", len(events))
	}
}
