// SPDX-License-Identifier: MIT
//
// Package profile holds the per-device-family constants the firmware codec
// needs: XOR keys, the encrypted block range, the flash-layout map, and the
// magic-byte signatures used to recognise a device from a raw flash dump.
// It plays the role the teacher's lib/config package plays for Ducky
// updaters: an immutable registry plus an optional TOML override file.
package profile

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/hcoder/deqflash/lib/codec"
)

// ChecksumVariant selects which sub-block checksum routine a profile uses.
// Every profile shipped here uses ChecksumStandard; the type exists because
// the data model calls out a "checksum-variant selector" per profile, and a
// future device family could plausibly need a different one.
type ChecksumVariant int

const ChecksumStandard ChecksumVariant = 0

// LayoutRange names a contiguous, inclusive range of flash blocks.
type LayoutRange struct {
	Label      string
	StartBlock int
	EndBlock   int
}

// BootloaderOffsets are byte offsets, relative to the start of flash, of
// fixed fields the bootloader embeds in its own image.
type BootloaderOffsets struct {
	BootloaderKey           int
	EncryptedApplicationKey int
	MIDIUpdateKey           int
	LCDBanner               int
	ModelTag                int
}

// Signature is a fixed byte pattern found at a known block and offset,
// used to recognise a device family from a raw flash dump.
type Signature struct {
	Name   string
	Block  int
	Offset int
	Want   []byte
}

// Profile is the immutable set of constants associated with one device
// family: keys, the block-address-cipher's applicable range, the
// flash-layout table, and the signatures that identify it.
type Profile struct {
	Name            string
	ModelID         byte
	ChecksumVariant ChecksumVariant

	MIDIKey        []byte
	ApplicationKey []byte

	// EncryptedBlockRange is the inclusive [first, last] block index range
	// the block-address cipher (codec.CipherBlock) applies to.
	EncryptedBlockRange [2]int

	ApplicationStartBlock int

	Layout     []LayoutRange
	Bootloader BootloaderOffsets
	Signatures []Signature
}

// Checksum computes the sub-block checksum this profile uses.
func (p *Profile) Checksum(data []byte) (byte, error) {
	switch p.ChecksumVariant {
	case ChecksumStandard:
		return codec.Checksum(data)
	default:
		return 0, errors.Errorf("profile %s: unknown checksum variant %d", p.Name, p.ChecksumVariant)
	}
}

// BlockEncrypted reports whether block index is within the range the
// block-address cipher applies to for this profile.
func (p *Profile) BlockEncrypted(index int) bool {
	return index >= p.EncryptedBlockRange[0] && index <= p.EncryptedBlockRange[1]
}

// LayoutFor returns the layout range a block index falls in, if any.
func (p *Profile) LayoutFor(index int) (LayoutRange, bool) {
	for _, l := range p.Layout {
		if index >= l.StartBlock && index <= l.EndBlock {
			return l, true
		}
	}
	return LayoutRange{}, false
}

func (p *Profile) matchesSignature(image []byte) bool {
	for _, sig := range p.Signatures {
		if MatchesSignature(image, sig) {
			return true
		}
	}
	return false
}

// MatchesSignature reports whether image carries sig's byte pattern at its
// declared block and offset.
func MatchesSignature(image []byte, sig Signature) bool {
	addr := sig.Block*codec.BlockSize + sig.Offset
	end := addr + len(sig.Want)
	if end > len(image) {
		return false
	}
	return bytes.Equal(image[addr:end], sig.Want)
}

// DecryptedApplicationSignature is the marker a correctly-decrypted
// application image carries at a fixed offset. It isn't tied to any one
// device profile and Identify doesn't check it: it's a content check,
// exposed through LooksDecrypted, not a way to identify a device family.
var DecryptedApplicationSignature = Signature{
	Name:   "decrypted-application",
	Block:  4,
	Offset: 0x01c,
	Want:   []byte("COPY"),
}

// LooksDecrypted reports whether image carries the decrypted-application
// marker, i.e. whether XOR-decrypting with the application key plausibly
// produced real code rather than noise.
func LooksDecrypted(image []byte) bool {
	return MatchesSignature(image, DecryptedApplicationSignature)
}

// Identify attempts to recognise a raw flash image by checking each
// registered profile's signatures in registry order. It's the
// magic-byte-signature path used for raw binary dumps; the MIDI-key trial
// decode used while streaming a SysEx capture lives in lib/firmware, since
// it needs to try decoding rather than just pattern-match bytes.
func Identify(image []byte) (*Profile, error) {
	for _, p := range Registry {
		if p.matchesSignature(image) {
			return p, nil
		}
	}
	return nil, &UnknownProfileError{Detail: "no registered signature matched"}
}

// ByModelID returns every registered profile whose ModelID matches id.
func ByModelID(id byte) []*Profile {
	var out []*Profile
	for _, p := range Registry {
		if p.ModelID == id {
			out = append(out, p)
		}
	}
	return out
}
