// SPDX-License-Identifier: MIT
package firmware

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/hcoder/deqflash/lib/codec"
	"github.com/hcoder/deqflash/lib/profile"
	"github.com/hcoder/deqflash/lib/sysex"
)

func isRegistered(p *profile.Profile) bool {
	for _, r := range profile.Registry {
		if r == p {
			return true
		}
	}
	return false
}

// Encode turns a cleartext flash-image buffer into a stream of SysEx
// firmware-write events. address must be 4096-aligned; data is padded
// with 0xff up to the next multiple of 4096. If address marks the start
// of prof's application region, data is XOR-encrypted with the
// application key before anything else happens, matching what the
// device itself expects to find in that region.
//
// messages are inserted immediately before the firmware event at their
// Ordinal (a global sub-block sequence number starting at 0), or after
// every block has been emitted if Ordinal equals the total sub-block
// count.
func Encode(prof *profile.Profile, address uint32, data []byte, messages []DisplayMessage) ([]byte, error) {
	if prof == nil || !isRegistered(prof) {
		name := ""
		if prof != nil {
			name = prof.Name
		}
		return nil, &UnsupportedDeviceError{Name: name}
	}
	if address%codec.BlockSize != 0 {
		return nil, errors.Errorf("target address 0x%x is not aligned to 0x%x", address, codec.BlockSize)
	}

	buf := append([]byte{}, data...)
	if int(address) == prof.ApplicationStartBlock*codec.BlockSize {
		buf = codec.XOR(buf, prof.ApplicationKey)
	}

	if rem := len(buf) % codec.BlockSize; rem != 0 {
		pad := bytes.Repeat([]byte{0xff}, codec.BlockSize-rem)
		buf = append(buf, pad...)
	}

	baseBlock := int(address / codec.BlockSize)
	numBlocks := len(buf) / codec.BlockSize

	byOrdinal := make(map[int]DisplayMessage, len(messages))
	for _, m := range messages {
		byOrdinal[m.Ordinal] = m
	}

	var out bytes.Buffer
	ordinal := 0

	for i := 0; i < numBlocks; i++ {
		blockIndex := baseBlock + i
		block := append([]byte{}, buf[i*codec.BlockSize:(i+1)*codec.BlockSize]...)

		if prof.BlockEncrypted(blockIndex) {
			ciphered, err := codec.CipherBlock(block, uint32(blockIndex))
			if err != nil {
				return nil, err
			}
			block = ciphered
		}

		for s := 0; s < 16; s++ {
			if m, ok := byOrdinal[ordinal]; ok {
				ev, err := buildDisplayEvent(prof, m.Text)
				if err != nil {
					return nil, err
				}
				out.Write(ev)
			}

			subNo := uint16(blockIndex<<4) + uint16(s)
			payload := block[s*256 : (s+1)*256]

			ev, err := buildFirmwareEvent(prof, subNo, payload)
			if err != nil {
				return nil, err
			}
			out.Write(ev)

			ordinal++
		}
	}

	if m, ok := byOrdinal[ordinal]; ok {
		ev, err := buildDisplayEvent(prof, m.Text)
		if err != nil {
			return nil, err
		}
		out.Write(ev)
	}

	return out.Bytes(), nil
}

// EncodeSubBlock builds the SysEx event for a single 256-byte sub-block
// payload under subNo, without any of Encode's block-level bookkeeping.
// It's the building block a live device controller (out of scope here)
// would reuse to write one sub-block at a time.
func EncodeSubBlock(prof *profile.Profile, subNo uint16, payload []byte) ([]byte, error) {
	return buildFirmwareEvent(prof, subNo, payload)
}

func buildFirmwareEvent(prof *profile.Profile, subNo uint16, payload []byte) ([]byte, error) {
	if len(payload) != 256 {
		return nil, &ShortBlockError{Got: len(payload), Want: 256}
	}

	checksum, err := prof.Checksum(payload)
	if err != nil {
		return nil, err
	}

	header := []byte{byte(subNo >> 8), byte(subNo), checksum}
	cleartext := append(header, payload...)

	encrypted := codec.XOR(cleartext, prof.MIDIKey)
	packed := codec.Pack(encrypted)

	ev := sysex.Event{
		DeviceID: sysex.Broadcast,
		ModelID:  prof.ModelID,
		Command:  CommandWriteFlashBlock,
		Payload:  packed,
	}
	return ev.Build(), nil
}

func buildDisplayEvent(prof *profile.Profile, text string) ([]byte, error) {
	var payload [256]byte
	copy(payload[:], text)
	return buildFirmwareEvent(prof, DisplaySubBlockNumber, payload[:])
}

// DecodeDisplayMessage extracts the text carried by a single decrypted,
// unpacked sub-block payload whose number is DisplaySubBlockNumber: text
// runs up to (but excluding) the first NUL byte. It's exposed alongside
// EncodeSubBlock for a live device controller that decodes display
// sub-blocks outside of a full Decoder pass.
func DecodeDisplayMessage(payload []byte) string {
	return decodeDisplayText(payload)
}
