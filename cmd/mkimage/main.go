// Command mkimage synthesizes a bootable GPT+FAT32 disk image from a
// source directory tree.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bontaos/diskimage/internal/fat32"
	"github.com/bontaos/diskimage/internal/guidsrc"
	"github.com/bontaos/diskimage/internal/image"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	app := &cli.App{
		Name:      "mkimage",
		Usage:     "build a GPT+FAT32 disk image from a directory tree",
		ArgsUsage: "INPUT_DIRECTORY OUTPUT_IMAGE",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "guid-seed",
				Usage: "derive all GUIDs deterministically from this seed, instead of crypto/rand (debug builds only)",
			},
			&cli.StringFlag{
				Name:  "fixed-time",
				Usage: "stamp every directory entry with this RFC3339 time instead of the host clock (debug builds only)",
			},
		},
		Action: buildImage(logger),
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("build failed", "error", err)
		os.Exit(1)
	}
}

func buildImage(logger *slog.Logger) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 2 {
			return fmt.Errorf("usage: mkimage %s", c.Command.ArgsUsage)
		}
		inputDir := c.Args().Get(0)
		outputPath := c.Args().Get(1)

		info, err := os.Stat(inputDir)
		if err != nil {
			return fmt.Errorf("opening source directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", inputDir)
		}

		var guids guidsrc.Source = guidsrc.Random{}
		if c.IsSet("guid-seed") {
			guids = guidsrc.Seeded(c.Uint64("guid-seed"))
		}

		var clock fat32.Clock = fat32.RealClock{}
		if t := c.String("fixed-time"); t != "" {
			parsed, err := time.Parse(time.RFC3339, t)
			if err != nil {
				return fmt.Errorf("parsing --fixed-time: %w", err)
			}
			clock = fat32.FixedClock(parsed)
		}

		out, err := os.OpenFile(outputPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("opening output image: %w", err)
		}
		defer out.Close()

		if err := out.Truncate(int64(image.TotalBlocks) * image.LBASize); err != nil {
			return fmt.Errorf("sizing output image: %w", err)
		}

		writer := image.NewWriter(out, guids, clock, logger)
		if err := writer.Build(inputDir); err != nil {
			return fmt.Errorf("building image: %w", err)
		}

		if err := out.Sync(); err != nil {
			return fmt.Errorf("flushing output image: %w", err)
		}

		logger.Info("image built", "input", inputDir, "output", outputPath)
		return nil
	}
}
