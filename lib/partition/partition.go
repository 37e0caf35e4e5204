// SPDX-License-Identifier: MIT
//
// Package partition turns a decoded firmware.Bundle's sparse block map
// into named logical images (bootloader, application, presets, scratch,
// device-specific data) using the device profile's flash-layout table,
// and recovers the application's cleartext XOR key from the bootloader
// image when possible.
package partition

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"github.com/usedbytes/log"

	"github.com/hcoder/deqflash/lib/codec"
	"github.com/hcoder/deqflash/lib/firmware"
	"github.com/hcoder/deqflash/lib/profile"
)

// Policy controls how a named image is rendered when its block range has
// gaps in the sparse map.
type Policy int

const (
	// GapSensitive stops at the first missing block within the range
	// (after at least one block has been emitted), reporting only what
	// the device would actually have received from this update.
	GapSensitive Policy = iota
	// GapFill substitutes 0xff-filled blocks for any gap, for a
	// full-chip view.
	GapFill
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// NamedImage is one labeled, concatenated logical image extracted from a
// Bundle.
type NamedImage struct {
	Label string
	Data  []byte
}

// Fingerprint computes a CRC-16/XMODEM checksum over the image's bytes.
// It's a reporting aid only, for comparing two captures of the same
// logical image — it plays no part in the codec's own correctness
// checks, which are the sub-block checksum and the block-address cipher.
func (n NamedImage) Fingerprint() uint16 {
	return crc16.Checksum(n.Data, crcTable)
}

// Partition renders every range in bundle's device profile's flash-layout
// table as a NamedImage, plus a second "application-decrypted" image for
// the application region, recovered via RecoverApplicationKey.
func Partition(bundle firmware.Bundle, policy Policy) ([]NamedImage, error) {
	if bundle.Profile == nil {
		return nil, errors.New("cannot partition a bundle with no identified device profile")
	}

	var images []NamedImage
	for _, layout := range bundle.Profile.Layout {
		data := renderRange(bundle.Blocks, layout.StartBlock, layout.EndBlock, policy)
		images = append(images, NamedImage{Label: layout.Label, Data: data})

		if layout.Label == "application" {
			key, err := RecoverApplicationKey(bundle)
			if err != nil {
				log.Verboseln("skipping decrypted application image:", err)
				continue
			}
			images = append(images, NamedImage{
				Label: "application-decrypted",
				Data:  codec.XOR(data, key),
			})
		}
	}

	return images, nil
}

func renderRange(blocks map[int]firmware.FlashBlock, start, end int, policy Policy) []byte {
	var out bytes.Buffer
	started := false

	for i := start; i <= end; i++ {
		block, ok := blocks[i]
		if !ok {
			if policy == GapFill {
				out.Write(bytes.Repeat([]byte{0xff}, codec.BlockSize))
				continue
			}
			if started {
				break
			}
			continue
		}
		started = true
		out.Write(block.Data[:])
	}

	return out.Bytes()
}

func bootloaderLayout(prof *profile.Profile) (profile.LayoutRange, bool) {
	for _, l := range prof.Layout {
		if l.Label == "bootloader" {
			return l, true
		}
	}
	return profile.LayoutRange{}, false
}

// RecoverApplicationKey reads the bootloader-embedded key bytes at the
// profile's documented offsets and XORs them together to reveal the
// cleartext application key. It falls back to the profile's default
// application key whenever that's not possible: the bootloader's blocks
// aren't all present in bundle, or the profile's key offsets don't fit
// within the bootloader image the layout table actually renders.
func RecoverApplicationKey(bundle firmware.Bundle) ([]byte, error) {
	prof := bundle.Profile
	if prof == nil {
		return nil, errors.New("cannot recover an application key with no device profile")
	}

	bootloaderRange, ok := bootloaderLayout(prof)
	if !ok {
		return append([]byte{}, prof.ApplicationKey...), nil
	}

	for i := bootloaderRange.StartBlock; i <= bootloaderRange.EndBlock; i++ {
		if _, ok := bundle.Blocks[i]; !ok {
			log.Verboseln("bootloader incomplete, using default application key")
			return append([]byte{}, prof.ApplicationKey...), nil
		}
	}

	bootloaderImage := renderRange(bundle.Blocks, bootloaderRange.StartBlock, bootloaderRange.EndBlock, GapFill)

	keyLen := len(prof.ApplicationKey)
	bkOff := prof.Bootloader.BootloaderKey
	eakOff := prof.Bootloader.EncryptedApplicationKey

	if bkOff+keyLen > len(bootloaderImage) || eakOff+keyLen > len(bootloaderImage) {
		log.Verboseln("bootloader key offsets don't fit this profile's bootloader image, using default application key")
		return append([]byte{}, prof.ApplicationKey...), nil
	}

	bootKey := bootloaderImage[bkOff : bkOff+keyLen]
	encAppKey := bootloaderImage[eakOff : eakOff+keyLen]

	return codec.XOR(bootKey, encAppKey), nil
}
