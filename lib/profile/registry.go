// SPDX-License-Identifier: MIT
package profile

// Registry holds every built-in device profile. Order matters for
// Identify: Secondary and PrimaryV2 carry a distinguishing signature and
// are tried before Primary. Primary has no signature, so Identify never
// selects it; an image matching neither signature is reported as unknown.
var Registry = []*Profile{&Secondary, &PrimaryV2, &Primary}

var primaryLayout = []LayoutRange{
	{Label: "bootloader", StartBlock: 0x00, EndBlock: 0x03},
	{Label: "application", StartBlock: 0x04, EndBlock: 0x5a},
	{Label: "unused", StartBlock: 0x5b, EndBlock: 0x73},
	{Label: "presets", StartBlock: 0x74, EndBlock: 0x7b},
	{Label: "scratch", StartBlock: 0x7c, EndBlock: 0x7d},
	{Label: "device-data", StartBlock: 0x7e, EndBlock: 0x7f},
}

var primaryBootloaderOffsets = BootloaderOffsets{
	BootloaderKey:           0x3002,
	EncryptedApplicationKey: 0x303a,
	MIDIUpdateKey:           0x2c84,
	LCDBanner:               0x308a,
	ModelTag:                0x2c94,
}

// Primary is the most common DEQ2496 bootloader/MIDI-update variant.
var Primary = Profile{
	Name:                  "primary",
	ModelID:               0x00,
	ChecksumVariant:       ChecksumStandard,
	MIDIKey:               []byte("TZ'04"),
	ApplicationKey:        append([]byte("- ORIGINAL BEHRINGER CODE - COPYRIGHT 2004 - BGER/TZ - "), 0x00),
	EncryptedBlockRange:   [2]int{0x04, 0x5a},
	ApplicationStartBlock: 0x04,
	Layout:                primaryLayout,
	Bootloader:            primaryBootloaderOffsets,
}

// PrimaryV2 shares every key and layout constant with Primary; the only
// difference spec.md documents is the bootloader's self-identifying banner
// string, used here purely so a raw flash dump can report which
// bootloader revision it came from.
var PrimaryV2 = Profile{
	Name:                  "primary-v2",
	ModelID:               0x00,
	ChecksumVariant:       ChecksumStandard,
	MIDIKey:               Primary.MIDIKey,
	ApplicationKey:        Primary.ApplicationKey,
	EncryptedBlockRange:   Primary.EncryptedBlockRange,
	ApplicationStartBlock: Primary.ApplicationStartBlock,
	Layout:                primaryLayout,
	Bootloader:            primaryBootloaderOffsets,
	Signatures: []Signature{
		{
			Name:   "primary-v2-banner",
			Block:  2,
			Offset: 0xc94,
			Want:   []byte("DEQ2496V2 BOOTLOADER V2.2"),
		},
	},
}

// Secondary is a shifted-layout variant: the application region starts
// 8 KiB earlier and runs further into flash than Primary's, which leaves
// room for only two blocks of bootloader instead of four.
var Secondary = Profile{
	Name:                  "secondary",
	ModelID:               0x01,
	ChecksumVariant:       ChecksumStandard,
	MIDIKey:               []byte("TZ'02"),
	ApplicationKey:        append([]byte("- ORIGINAL BEHRINGER CODE - COPYRIGHT 2002 - BGER/TZ - "), 0x00),
	EncryptedBlockRange:   [2]int{0x02, 0x5e},
	ApplicationStartBlock: 0x02,
	Layout: []LayoutRange{
		{Label: "bootloader", StartBlock: 0x00, EndBlock: 0x01},
		{Label: "application", StartBlock: 0x02, EndBlock: 0x5e},
		{Label: "unused", StartBlock: 0x5f, EndBlock: 0x73},
		{Label: "presets", StartBlock: 0x74, EndBlock: 0x7b},
		{Label: "scratch", StartBlock: 0x7c, EndBlock: 0x7d},
		{Label: "device-data", StartBlock: 0x7e, EndBlock: 0x7f},
	},
	// spec.md gives no secondary-specific bootloader offsets; Primary's
	// are reused as the best available default (see DESIGN.md).
	Bootloader: primaryBootloaderOffsets,
	Signatures: []Signature{
		{
			Name:   "secondary-tag",
			Block:  2,
			Offset: 0x020,
			Want:   []byte("SIG"),
		},
	},
}
