// SPDX-License-Identifier: MIT
package partition

import (
	"bytes"
	"testing"

	"github.com/hcoder/deqflash/lib/codec"
	"github.com/hcoder/deqflash/lib/firmware"
	"github.com/hcoder/deqflash/lib/profile"
)

func block(fill byte) firmware.FlashBlock {
	var b firmware.FlashBlock
	for i := range b.Data {
		b.Data[i] = fill
	}
	return b
}

func TestPartitionNoProfile(t *testing.T) {
	_, err := Partition(firmware.Bundle{}, GapFill)
	if err == nil {
		t.Fatal("expected error partitioning a bundle with no profile")
	}
}

func TestRenderRangeGapSensitiveStopsAtFirstGap(t *testing.T) {
	blocks := map[int]firmware.FlashBlock{
		0x04: block(0x01),
		0x05: block(0x02),
		// 0x06 missing
		0x07: block(0x03),
	}

	got := renderRange(blocks, 0x04, 0x07, GapSensitive)
	want := 2 * codec.BlockSize
	if len(got) != want {
		t.Fatalf("got %d bytes, want %d (should stop at the gap)", len(got), want)
	}
}

func TestRenderRangeGapSensitiveSkipsLeadingGap(t *testing.T) {
	blocks := map[int]firmware.FlashBlock{
		// 0x04, 0x05 missing
		0x06: block(0x01),
		0x07: block(0x02),
	}

	got := renderRange(blocks, 0x04, 0x07, GapSensitive)
	want := 2 * codec.BlockSize
	if len(got) != want {
		t.Fatalf("got %d bytes, want %d (should skip the leading gap and start at 0x06)", len(got), want)
	}
	if got[0] != 0x01 {
		t.Fatalf("first byte = 0x%02x, want 0x01", got[0])
	}
}

func TestRenderRangeGapFillPadsGaps(t *testing.T) {
	blocks := map[int]firmware.FlashBlock{
		0x04: block(0x01),
		0x06: block(0x02),
	}

	got := renderRange(blocks, 0x04, 0x06, GapFill)
	want := 3 * codec.BlockSize
	if len(got) != want {
		t.Fatalf("got %d bytes, want %d", len(got), want)
	}
	for i := codec.BlockSize; i < 2*codec.BlockSize; i++ {
		if got[i] != 0xff {
			t.Fatalf("gap byte %d = 0x%02x, want 0xff", i, got[i])
		}
	}
}

func TestPartitionLabelsMatchLayout(t *testing.T) {
	blocks := map[int]firmware.FlashBlock{
		0x04: block(0x00),
	}
	bundle := firmware.Bundle{Profile: &profile.Primary, Blocks: blocks}

	images, err := Partition(bundle, GapFill)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	labels := make(map[string]bool)
	for _, img := range images {
		labels[img.Label] = true
	}
	for _, want := range []string{"bootloader", "application", "application-decrypted", "unused", "presets", "scratch", "device-data"} {
		if !labels[want] {
			t.Fatalf("missing image labeled %q", want)
		}
	}
}

func TestPartitionApplicationDecryptedMatchesEncode(t *testing.T) {
	clear := make([]byte, codec.BlockSize)
	for i := range clear {
		clear[i] = byte(i)
	}

	wire, err := firmware.Encode(&profile.Primary, uint32(profile.Primary.ApplicationStartBlock*codec.BlockSize), clear, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	bundle, err := firmware.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	images, err := Partition(bundle, GapSensitive)
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}

	var decrypted *NamedImage
	for i := range images {
		if images[i].Label == "application-decrypted" {
			decrypted = &images[i]
		}
	}
	if decrypted == nil {
		t.Fatal("no application-decrypted image produced")
	}
	if !bytes.Equal(decrypted.Data[:len(clear)], clear) {
		t.Fatal("application-decrypted image doesn't match the original cleartext")
	}
}

func TestRecoverApplicationKeyFallsBackWhenBootloaderMissing(t *testing.T) {
	bundle := firmware.Bundle{Profile: &profile.Primary, Blocks: map[int]firmware.FlashBlock{}}

	got, err := RecoverApplicationKey(bundle)
	if err != nil {
		t.Fatalf("RecoverApplicationKey: %v", err)
	}
	if !bytes.Equal(got, profile.Primary.ApplicationKey) {
		t.Fatal("expected fallback to the profile's default application key")
	}
}

func TestRecoverApplicationKeyFromBootloaderBytes(t *testing.T) {
	prof := &profile.Profile{
		Name:           "synthetic",
		ApplicationKey: []byte("SECRETKEY"),
		Bootloader: profile.BootloaderOffsets{
			BootloaderKey:           0x10,
			EncryptedApplicationKey: 0x40,
		},
		Layout: []profile.LayoutRange{
			{Label: "bootloader", StartBlock: 0, EndBlock: 0},
		},
	}

	key := []byte("SECRETKEY")
	bootKey := bytes.Repeat([]byte{0xaa}, len(key))
	encAppKey := make([]byte, len(key))
	for i := range encAppKey {
		encAppKey[i] = bootKey[i] ^ key[i]
	}

	boot := block(0x00)
	copy(boot.Data[0x10:], bootKey)
	copy(boot.Data[0x40:], encAppKey)

	bundle := firmware.Bundle{Profile: prof, Blocks: map[int]firmware.FlashBlock{0: boot}}

	got, err := RecoverApplicationKey(bundle)
	if err != nil {
		t.Fatalf("RecoverApplicationKey: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("recovered key = %q, want %q", got, key)
	}
}

func TestRecoverApplicationKeySecondaryBootloaderOffsetsOutOfRange(t *testing.T) {
	// Secondary's bootloader is only two blocks (8192 bytes), but it
	// reuses Primary's bootloader-key offsets, which sit well past that.
	// With the bootloader blocks actually present, recovery must still
	// fall back to the default key rather than error out.
	blocks := map[int]firmware.FlashBlock{
		0: block(0x00),
		1: block(0x00),
	}
	bundle := firmware.Bundle{Profile: &profile.Secondary, Blocks: blocks}

	got, err := RecoverApplicationKey(bundle)
	if err != nil {
		t.Fatalf("RecoverApplicationKey: %v", err)
	}
	if !bytes.Equal(got, profile.Secondary.ApplicationKey) {
		t.Fatal("expected fallback to secondary's default application key when bootloader offsets don't fit the rendered image")
	}
}

func TestFingerprintStableAcrossEqualData(t *testing.T) {
	a := NamedImage{Label: "x", Data: []byte("hello world")}
	b := NamedImage{Label: "y", Data: []byte("hello world")}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprints of identical data should match regardless of label")
	}

	c := NamedImage{Label: "x", Data: []byte("hello worle")}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatal("fingerprints of different data should (almost certainly) differ")
	}
}
