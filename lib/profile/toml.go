// SPDX-License-Identifier: MIT
package profile

import (
	_ "embed"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// defaultPackTOML is the built-in profile pack, in the same format a
// caller-supplied override file uses. It's kept here mainly so the
// compiled-in defaults and any on-disk override stay in the same shape —
// the Go literals in registry.go are what Identify and Registry actually
// use at startup.
//
//go:embed profiles.toml
var defaultPackTOML []byte

// DefaultPackTOML returns the embedded default profile pack in its raw
// TOML form, for callers that want to dump it as a starting point for an
// override file.
func DefaultPackTOML() []byte {
	return defaultPackTOML
}

type tomlSignature struct {
	Name   string `toml:"name"`
	Block  int    `toml:"block"`
	Offset int    `toml:"offset"`
	Want   string `toml:"want"`
}

type tomlLayoutRange struct {
	Label      string `toml:"label"`
	StartBlock int    `toml:"start_block"`
	EndBlock   int    `toml:"end_block"`
}

type tomlBootloaderOffsets struct {
	BootloaderKey           int `toml:"bootloader_key"`
	EncryptedApplicationKey int `toml:"encrypted_application_key"`
	MIDIUpdateKey           int `toml:"midi_update_key"`
	LCDBanner               int `toml:"lcd_banner"`
	ModelTag                int `toml:"model_tag"`
}

type tomlProfile struct {
	Name                  string                `toml:"name"`
	ModelID               int                   `toml:"model_id"`
	MIDIKey               string                `toml:"midi_key"`
	ApplicationKeyText    string                `toml:"application_key_text"`
	EncryptedBlockRange   [2]int                `toml:"encrypted_block_range"`
	ApplicationStartBlock int                   `toml:"application_start_block"`
	Bootloader            tomlBootloaderOffsets `toml:"bootloader"`
	Layout                []tomlLayoutRange     `toml:"layout"`
	Signatures            []tomlSignature       `toml:"signature"`
}

type tomlPack struct {
	Profiles []tomlProfile `toml:"profile"`
}

func (tp tomlProfile) toProfile() *Profile {
	p := &Profile{
		Name:                  tp.Name,
		ModelID:               byte(tp.ModelID),
		ChecksumVariant:       ChecksumStandard,
		MIDIKey:               []byte(tp.MIDIKey),
		ApplicationKey:        append([]byte(tp.ApplicationKeyText), 0x00),
		EncryptedBlockRange:   tp.EncryptedBlockRange,
		ApplicationStartBlock: tp.ApplicationStartBlock,
		Bootloader: BootloaderOffsets{
			BootloaderKey:           tp.Bootloader.BootloaderKey,
			EncryptedApplicationKey: tp.Bootloader.EncryptedApplicationKey,
			MIDIUpdateKey:           tp.Bootloader.MIDIUpdateKey,
			LCDBanner:               tp.Bootloader.LCDBanner,
			ModelTag:                tp.Bootloader.ModelTag,
		},
	}

	for _, l := range tp.Layout {
		p.Layout = append(p.Layout, LayoutRange{
			Label:      l.Label,
			StartBlock: l.StartBlock,
			EndBlock:   l.EndBlock,
		})
	}

	for _, s := range tp.Signatures {
		p.Signatures = append(p.Signatures, Signature{
			Name:   s.Name,
			Block:  s.Block,
			Offset: s.Offset,
			Want:   []byte(s.Want),
		})
	}

	return p
}

// LoadTOMLPack parses a profile pack file and returns the profiles it
// defines. It doesn't touch Registry; call RegisterProfiles with the
// result to make them available to Identify.
func LoadTOMLPack(file string) ([]*Profile, error) {
	var pack tomlPack
	if _, err := toml.DecodeFile(file, &pack); err != nil {
		return nil, errors.Wrap(err, "decoding profile pack")
	}

	if len(pack.Profiles) == 0 {
		return nil, errors.New("profile pack defines no profiles")
	}

	profiles := make([]*Profile, 0, len(pack.Profiles))
	for _, tp := range pack.Profiles {
		profiles = append(profiles, tp.toProfile())
	}

	return profiles, nil
}

// RegisterProfiles prepends ps to Registry, so they're tried before the
// built-in profiles by Identify and are preferred by ByModelID when a
// model ID collides with a built-in one.
func RegisterProfiles(ps []*Profile) {
	Registry = append(append([]*Profile{}, ps...), Registry...)
}
