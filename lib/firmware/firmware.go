// SPDX-License-Identifier: MIT
//
// Package firmware assembles and disassembles flash images from the
// sub-block/block structure the SysEx wire format carries them in: it
// buffers incoming 256-byte sub-blocks by number, finalizes 4096-byte
// blocks once all sixteen of their sub-blocks have arrived, and applies
// the block-address cipher to the blocks a device profile marks as
// encrypted. Encode runs the same process in reverse.
package firmware

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"

	"github.com/hcoder/deqflash/lib/codec"
	"github.com/hcoder/deqflash/lib/profile"
	"github.com/hcoder/deqflash/lib/sysex"
)

// CommandWriteFlashBlock is the SysEx command ID carrying a firmware
// sub-block, encoded or decoded.
const CommandWriteFlashBlock byte = 0x34

// DisplaySubBlockNumber is the reserved sub-block number an LCD
// display-message payload is carried under, instead of flash data.
const DisplaySubBlockNumber uint16 = 0xff00

// FlashBlock is one 4096-byte unit of flash, tagged with its index
// (flash address divided by 0x1000).
type FlashBlock struct {
	Index int
	Data  [codec.BlockSize]byte
}

// Format tags how a Bundle's bytes were sourced.
type Format string

const (
	FormatSysEx Format = "sysex"
	FormatRaw   Format = "raw-binary"
)

// Bundle is the read-only result of a decode: the device profile
// identified (if any), the sparse map of finalized flash blocks, and any
// display messages captured along the way.
type Bundle struct {
	Profile         *profile.Profile
	Blocks          map[int]FlashBlock
	Format          Format
	DisplayMessages map[int]string
	ModelID         byte
}

// DisplayMessage is one LCD display message to insert during Encode, at
// the sub-block ordinal it should precede.
type DisplayMessage struct {
	Ordinal int
	Text    string
}

// Decoder buffers sub-blocks arriving from a SysEx event stream and
// finalizes them into flash blocks. It is not safe for concurrent use by
// multiple goroutines on the same instance.
type Decoder struct {
	prof            *profile.Profile
	subBlocks       map[uint16][256]byte
	displayMessages map[int]string
	modelID         byte
	firmwareOrdinal int
}

// NewDecoder returns an empty Decoder, ready to Feed events into.
func NewDecoder() *Decoder {
	return &Decoder{
		subBlocks:       make(map[uint16][256]byte),
		displayMessages: make(map[int]string),
	}
}

// Feed processes one parsed SysEx event. Events with a command other than
// CommandWriteFlashBlock are logged at verbose level and skipped — the
// codec doesn't invent semantics for commands it doesn't handle.
func (d *Decoder) Feed(ev sysex.Event) error {
	if ev.Command != CommandWriteFlashBlock {
		log.Verbosef("skipping sysex command 0x%02x (unhandled)\n", ev.Command)
		return nil
	}

	d.modelID = ev.ModelID

	if d.prof == nil {
		p, err := identifyFromEvent(ev)
		if err != nil {
			return err
		}
		d.prof = p
		log.Verboseln("identified device profile:", p.Name)
	}

	unpacked, err := codec.Unpack(ev.Payload)
	if err != nil {
		return errors.Wrap(err, "unpacking sysex payload")
	}

	decrypted := codec.XOR(unpacked, d.prof.MIDIKey)
	if len(decrypted) < 3+256 {
		return &ShortBlockError{Got: len(decrypted), Want: 3 + 256}
	}

	subNo := binary.BigEndian.Uint16(decrypted[0:2])
	transmittedChecksum := decrypted[2]
	var payload [256]byte
	copy(payload[:], decrypted[3:3+256])

	if subNo == DisplaySubBlockNumber {
		text := decodeDisplayText(payload[:])
		d.displayMessages[d.firmwareOrdinal] = text
		log.Verboseln("display message at ordinal", d.firmwareOrdinal, ":", text)
		return nil
	}

	want, err := d.prof.Checksum(payload[:])
	if err != nil {
		return err
	}
	if want != transmittedChecksum {
		return &ChecksumMismatchError{SubBlock: subNo, Got: transmittedChecksum, Want: want}
	}

	d.subBlocks[subNo] = payload
	d.firmwareOrdinal++

	return nil
}

// identifyFromEvent resolves the device profile for a decode pass using
// the first accepted firmware-write event: candidates sharing the
// event's model ID are trial-decoded with their MIDI key, and the first
// whose first sub-block checksum matches wins. If exactly one profile
// registers that model ID, it's used directly without a trial.
func identifyFromEvent(ev sysex.Event) (*profile.Profile, error) {
	candidates := profile.ByModelID(ev.ModelID)
	if len(candidates) == 0 {
		return nil, &profile.UnknownProfileError{Detail: "no profile registered for this model id"}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	unpacked, err := codec.Unpack(ev.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "unpacking sysex payload for profile identification")
	}

	for _, p := range candidates {
		decrypted := codec.XOR(unpacked, p.MIDIKey)
		if len(decrypted) < 3+256 {
			continue
		}
		// Display sub-blocks carry a checksum over their payload exactly
		// like a real sub-block does, so the trial below disambiguates
		// them the same way regardless of subNo.
		want, err := p.Checksum(decrypted[3 : 3+256])
		if err != nil {
			continue
		}
		if want == decrypted[2] {
			log.Verboseln("resolved ambiguous profile via checksum trial:", p.Name)
			return p, nil
		}
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return nil, &profile.AmbiguousProfileError{ModelID: ev.ModelID, Candidates: names}
}

// GetBlocks finalizes every flash block for which all sixteen sub-blocks
// have been fed so far. A block with any sub-block still missing is
// omitted entirely — it is never zero-filled.
func (d *Decoder) GetBlocks() map[int]FlashBlock {
	blocks := make(map[int]FlashBlock)

	for i := 0; i <= 0x7f; i++ {
		var data [codec.BlockSize]byte
		complete := true

		for s := 0; s < 16; s++ {
			subNo := uint16(i<<4) + uint16(s)
			payload, ok := d.subBlocks[subNo]
			if !ok {
				complete = false
				break
			}
			copy(data[s*256:(s+1)*256], payload[:])
		}

		if !complete {
			continue
		}

		if d.prof != nil && d.prof.BlockEncrypted(i) {
			deciphered, err := codec.CipherBlock(data[:], uint32(i))
			if err != nil {
				// data is always exactly codec.BlockSize bytes here.
				panic(err)
			}
			copy(data[:], deciphered)
		}

		blocks[i] = FlashBlock{Index: i, Data: data}
	}

	return blocks
}

// Bundle packages the decoder's current state as a read-only Bundle.
func (d *Decoder) Bundle() Bundle {
	return Bundle{
		Profile:         d.prof,
		Blocks:          d.GetBlocks(),
		Format:          FormatSysEx,
		DisplayMessages: d.displayMessages,
		ModelID:         d.modelID,
	}
}

// Decode scans data for SysEx events and feeds every one of them through
// a fresh Decoder, returning the resulting Bundle.
func Decode(data []byte) (Bundle, error) {
	dec := NewDecoder()
	for _, ev := range sysex.Scan(data) {
		if err := dec.Feed(ev); err != nil {
			return Bundle{}, err
		}
	}
	return dec.Bundle(), nil
}

// DecodeRawImage decodes a flat flash dump (no SysEx framing) directly:
// it identifies the device profile by signature, slices the buffer into
// 4096-byte blocks, and deciphers the blocks within the profile's
// encrypted range. A trailing partial block (shorter than 4096 bytes) is
// dropped, the same as a sub-block gap would be on the SysEx path.
func DecodeRawImage(data []byte) (Bundle, error) {
	prof, identifyErr := profile.Identify(data)
	if identifyErr != nil {
		log.Verboseln("raw image profile identification failed:", identifyErr)
	}

	blocks := make(map[int]FlashBlock)
	for i := 0; i*codec.BlockSize < len(data); i++ {
		start := i * codec.BlockSize
		end := start + codec.BlockSize
		if end > len(data) {
			break
		}

		var block [codec.BlockSize]byte
		copy(block[:], data[start:end])

		if prof != nil && prof.BlockEncrypted(i) {
			deciphered, err := codec.CipherBlock(block[:], uint32(i))
			if err != nil {
				return Bundle{}, err
			}
			copy(block[:], deciphered)
		}

		blocks[i] = FlashBlock{Index: i, Data: block}
	}

	b := Bundle{
		Blocks:          blocks,
		Format:          FormatRaw,
		DisplayMessages: map[int]string{},
	}
	if prof != nil {
		b.Profile = prof
		b.ModelID = prof.ModelID
	}

	return b, nil
}

func decodeDisplayText(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return string(payload)
}
