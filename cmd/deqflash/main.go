// SPDX-License-Identifier: MIT
//
// deqflash is a thin driver over the firmware codec: decode a capture into
// flash blocks, encode flash bytes back into a SysEx update stream, or
// partition a decoded bundle into named logical images. It does not talk to
// a MIDI port or a device — that's out of scope here.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/log"

	"github.com/hcoder/deqflash/lib/firmware"
	"github.com/hcoder/deqflash/lib/partition"
	"github.com/hcoder/deqflash/lib/profile"
	"github.com/hcoder/deqflash/lib/sysex"
)

func readInput(ctx *cli.Context) ([]byte, string, error) {
	if ctx.Args().Len() != 1 {
		return nil, "", fmt.Errorf("INPUT_FILE is required")
	}
	fname := ctx.Args().First()
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, fname, errors.Wrap(err, "reading input file")
	}
	return data, fname, nil
}

func decodeAction(ctx *cli.Context) error {
	data, fname, err := readInput(ctx)
	if err != nil {
		return err
	}

	log.Println(">>> Loading", fname)

	var bundle firmware.Bundle
	if sysex.LooksLikeSysEx(data) {
		log.Verboseln("input looks like a sysex capture")
		bar := pb.StartNew(len(data))
		defer bar.Finish()

		dec := firmware.NewDecoder()
		for _, ev := range sysex.Scan(data) {
			if err := dec.Feed(ev); err != nil {
				return err
			}
			bar.Add(len(ev.Payload))
		}
		bundle = dec.Bundle()
	} else {
		log.Verboseln("input doesn't look like sysex, treating as a raw flash dump")
		bundle, err = firmware.DecodeRawImage(data)
		if err != nil {
			return err
		}
	}

	if bundle.Profile != nil {
		log.Println(">>> Identified profile:", bundle.Profile.Name)
	} else {
		log.Println(">>> Could not identify a device profile")
	}
	log.Printf(">>> Recovered %d flash blocks, %d display messages\n", len(bundle.Blocks), len(bundle.DisplayMessages))

	outDir := ctx.String("out")
	if outDir == "" {
		return nil
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	for i, b := range bundle.Blocks {
		name := fmt.Sprintf("%s/block-%04x.bin", outDir, i)
		if err := ioutil.WriteFile(name, b.Data[:], 0644); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	}

	return nil
}

func encodeAction(ctx *cli.Context) error {
	data, _, err := readInput(ctx)
	if err != nil {
		return err
	}

	name := ctx.String("profile")
	var prof *profile.Profile
	for _, p := range profile.Registry {
		if p.Name == name {
			prof = p
			break
		}
	}
	if prof == nil {
		return fmt.Errorf("unknown profile %q", name)
	}

	addr, err := strconv.ParseUint(ctx.String("address"), 0, 32)
	if err != nil {
		return errors.Wrap(err, "parsing --address")
	}

	log.Println(">>> Encoding against profile", prof.Name)
	bar := pb.StartNew(len(data))
	defer bar.Finish()
	bar.SetCurrent(int64(len(data)))

	wire, err := firmware.Encode(prof, uint32(addr), data, nil)
	if err != nil {
		return err
	}

	out := ctx.String("out")
	if out == "" {
		out = "out.syx"
	}
	if err := ioutil.WriteFile(out, wire, 0644); err != nil {
		return errors.Wrap(err, "writing output file")
	}
	log.Println(">>> Wrote", out)

	return nil
}

func partitionAction(ctx *cli.Context) error {
	data, _, err := readInput(ctx)
	if err != nil {
		return err
	}

	var bundle firmware.Bundle
	if sysex.LooksLikeSysEx(data) {
		bundle, err = firmware.Decode(data)
	} else {
		bundle, err = firmware.DecodeRawImage(data)
	}
	if err != nil {
		return err
	}

	policy := partition.GapFill
	if ctx.Bool("gap-sensitive") {
		policy = partition.GapSensitive
	}

	images, err := partition.Partition(bundle, policy)
	if err != nil {
		return err
	}

	outDir := ctx.String("out")
	for _, img := range images {
		log.Printf("%-24s % 8d bytes  crc16=0x%04x\n", img.Label, len(img.Data), img.Fingerprint())
		if outDir != "" {
			name := fmt.Sprintf("%s/%s.bin", outDir, img.Label)
			if err := ioutil.WriteFile(name, img.Data, 0644); err != nil {
				return errors.Wrapf(err, "writing %s", name)
			}
		}
	}

	key, err := partition.RecoverApplicationKey(bundle)
	if err != nil {
		log.Verboseln("application key recovery failed:", err)
	} else {
		log.Printf(">>> Recovered application key: %q\n", key)
	}

	return nil
}

func main() {
	app := &cli.App{
		Name:  "deqflash",
		Usage: "Decode, encode, and partition DEQ2496-family firmware updates",
		// Errors are reported and turned into an exit code in main(), not
		// by the framework.
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable more output",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "decode",
				ArgsUsage: "INPUT_FILE",
				Usage:     "Decode a sysex capture or raw flash dump into flash blocks",
				Action:    decodeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Directory to write extracted flash blocks into",
					},
				},
			},
			{
				Name:      "encode",
				ArgsUsage: "INPUT_FILE",
				Usage:     "Encode a flash image into a sysex update stream",
				Action:    encodeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "profile",
						Usage:    "Device profile to encode against",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Target flash address the input starts at",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output file (default out.syx)",
					},
				},
			},
			{
				Name:      "partition",
				ArgsUsage: "INPUT_FILE",
				Usage:     "Split a decoded bundle into named logical images",
				Action:    partitionAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "gap-sensitive",
						Usage: "Stop each image at its first missing block instead of 0xff-filling gaps",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Directory to write named images into",
					},
				},
			},
		},
		Before: func(ctx *cli.Context) error {
			log.SetUseLog(false)
			log.SetVerbose(ctx.Bool("verbose"))
			log.Verboseln("Extra output enabled.")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Println("ERROR:", err)
		if v, ok := err.(cli.ExitCoder); ok {
			os.Exit(v.ExitCode())
		} else {
			os.Exit(1)
		}
	}
}
