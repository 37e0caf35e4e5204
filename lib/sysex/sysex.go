// SPDX-License-Identifier: MIT
//
// Package sysex extracts and builds the MIDI System-Exclusive envelopes the
// DEQ firmware codec is carried over: a start sentinel, a three-byte vendor
// tag, a device/model/command header, an MSB-clear payload, and an end
// sentinel.
package sysex

import (
	"github.com/usedbytes/log"
)

// Start and End are the SysEx framing sentinels.
const (
	Start byte = 0xf0
	End   byte = 0xf7
)

// VendorTag is the three-byte vendor identifier this codec accepts.
// Envelopes carrying any other tag are skipped.
var VendorTag = [3]byte{0x00, 0x20, 0x32}

// Broadcast is the device ID meaning "all devices".
const Broadcast byte = 0x7f

// Event is a single parsed (or to-be-built) SysEx envelope.
type Event struct {
	DeviceID byte
	ModelID  byte
	Command  byte
	Payload  []byte
}

// Build serializes e into a complete SysEx byte stream: start sentinel,
// vendor tag, header, payload, end sentinel. The caller is responsible for
// making sure Payload bytes have their high bit clear.
func (e Event) Build() []byte {
	out := make([]byte, 0, 7+len(e.Payload))
	out = append(out, Start)
	out = append(out, VendorTag[:]...)
	out = append(out, e.DeviceID, e.ModelID, e.Command)
	out = append(out, e.Payload...)
	out = append(out, End)
	return out
}

// LooksLikeSysEx reports whether buf is recognizable as SysEx: it starts
// with Start, ends with End, and no interior byte has its high bit set
// unless it's itself a status byte (value >= 0xf0) — which lets a capture
// of several concatenated events (each with its own Start/End) still pass.
// It's used to tell a raw flash dump apart from a SysEx update stream
// before deciding which decode path to take.
func LooksLikeSysEx(buf []byte) bool {
	if len(buf) < 2 {
		return false
	}
	if buf[0] != Start || buf[len(buf)-1] != End {
		return false
	}
	for _, b := range buf[1 : len(buf)-1] {
		if b&0x80 != 0 && b < 0xf0 {
			return false
		}
	}
	return true
}

type scanState int

const (
	stateSearching scanState = iota
	stateInEvent
)

// Scan walks data and returns every well-formed SysEx event found in it.
// An event starts at 0xf0 and runs until the next byte with its high bit
// set; if that byte is End, the accumulated bytes are parsed as a header
// plus payload and, if the vendor tag matches, appended to the result.
// Any other outcome (truncation, wrong vendor, non-0xf7 terminator) is
// logged at verbose level and the bytes are discarded — corrupt envelopes
// in a captured MIDI log don't abort the rest of the scan.
func Scan(data []byte) []Event {
	var events []Event
	state := stateSearching
	var buf []byte

	for _, b := range data {
		switch state {
		case stateSearching:
			if b == Start {
				buf = buf[:0]
				state = stateInEvent
			}
		case stateInEvent:
			if b&0x80 != 0 {
				if b == End {
					ev, err := parseEvent(buf)
					if err != nil {
						log.Verboseln("skipping sysex event:", err)
					} else {
						events = append(events, ev)
					}
				} else {
					log.Verbosef("sysex event terminated by status byte 0x%02x, not 0x%02x: skipping\n", b, End)
				}
				state = stateSearching
			} else {
				buf = append(buf, b)
			}
		}
	}

	if state == stateInEvent {
		log.Verboseln("truncated sysex event at end of stream, discarding", len(buf), "bytes")
	}

	return events
}

func parseEvent(buf []byte) (Event, error) {
	const headerLen = len(VendorTag) + 3

	if len(buf) < headerLen {
		return Event{}, &MalformedEnvelopeError{Reason: "event shorter than header"}
	}

	var tag [3]byte
	copy(tag[:], buf[:3])
	if tag != VendorTag {
		return Event{}, &MalformedEnvelopeError{Reason: "unrecognised vendor tag"}
	}

	return Event{
		DeviceID: buf[3],
		ModelID:  buf[4],
		Command:  buf[5],
		Payload:  append([]byte{}, buf[6:]...),
	}, nil
}
