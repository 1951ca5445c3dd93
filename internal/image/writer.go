// Package image orchestrates the overall disk layout: the protective MBR,
// the primary and backup GPT structures, and the single embedded FAT32
// partition, all addressed through a diskio.Device so the full image is
// never held in memory at once.
package image

import (
	"fmt"
	"log/slog"

	"github.com/bontaos/diskimage/internal/crc32x"
	"github.com/bontaos/diskimage/internal/diskio"
	"github.com/bontaos/diskimage/internal/fat32"
	"github.com/bontaos/diskimage/internal/gpt"
	"github.com/bontaos/diskimage/internal/guidsrc"
	"github.com/bontaos/diskimage/internal/mbr"
)

// Disk geometry, fixed per spec.md §3.
const (
	LBASize = 512

	// Alignment is the 1 MiB boundary the partition and the backup
	// structures are aligned to, expressed in LBAs.
	Alignment = 1024 * 1024 / LBASize

	// UsableBlocks is the FAT32 partition's size: 4 GiB.
	UsableBlocks = 4 * 1024 * 1024 * 1024 / LBASize

	// TotalBlocks is the whole image's size in LBAs.
	TotalBlocks = 2*Alignment + UsableBlocks

	// NumberOfPartitionEntries entries of gpt.SizeOfPartitionEntry bytes
	// each exactly fill Alignment-2 LBAs (2046): together with the MBR and
	// the primary header they occupy LBAs 0..Alignment-1.
	NumberOfPartitionEntries = 4*Alignment - 8

	// partitionEntryArrayLBAs is how many LBAs the partition entry array
	// itself occupies; the backup array sits in the LBAs immediately
	// before the backup header, per this count.
	partitionEntryArrayLBAs = NumberOfPartitionEntries * gpt.SizeOfPartitionEntry / LBASize

	partitionName = "BontaOS.hdd1"
)

// Writer builds a complete disk image on dev.
type Writer struct {
	dev    diskio.Device
	guids  guidsrc.Source
	clock  fat32.Clock
	logger *slog.Logger
}

// NewWriter returns a Writer targeting dev, drawing randomness from guids
// and timestamps from clock.
func NewWriter(dev diskio.Device, guids guidsrc.Source, clock fat32.Clock, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dev: dev, guids: guids, clock: clock, logger: logger}
}

// Build writes the protective MBR, both GPT structures, and a FAT32
// partition populated from sourceDir, to dev.
func (w *Writer) Build(sourceDir string) error {
	if err := w.writeProtectiveMBR(); err != nil {
		return err
	}

	entries := make([]byte, NumberOfPartitionEntries*gpt.SizeOfPartitionEntry)
	if err := w.populatePartitionEntries(entries); err != nil {
		return err
	}
	entryCRC := crc32x.Checksum(entries)

	diskGUID, err := w.guids.GUID()
	if err != nil {
		return fmt.Errorf("image: drawing disk GUID: %w", err)
	}

	if err := w.writeHeader(headerParams{
		lba:              1,
		alternateLBA:     TotalBlocks - 1,
		partitionEntryLBA: 2,
		diskGUID:         diskGUID,
		entryCRC:         entryCRC,
	}); err != nil {
		return fmt.Errorf("image: writing primary GPT header: %w", err)
	}
	if err := w.writeEntries(entries, 2); err != nil {
		return fmt.Errorf("image: writing primary partition entries: %w", err)
	}

	if err := w.buildFAT32(sourceDir); err != nil {
		return err
	}

	backupEntriesLBA := int64(TotalBlocks - 1 - partitionEntryArrayLBAs)
	if err := w.writeEntries(entries, backupEntriesLBA); err != nil {
		return fmt.Errorf("image: writing backup partition entries: %w", err)
	}
	if err := w.writeHeader(headerParams{
		lba:               TotalBlocks - 1,
		alternateLBA:       1,
		partitionEntryLBA:  backupEntriesLBA,
		diskGUID:           diskGUID,
		entryCRC:           entryCRC,
	}); err != nil {
		return fmt.Errorf("image: writing backup GPT header: %w", err)
	}

	w.logger.Info("wrote disk image", "total_blocks", TotalBlocks, "disk_guid", guidsrc.String(diskGUID))
	return nil
}

func (w *Writer) writeProtectiveMBR() error {
	var sector [LBASize]byte
	bs, err := mbr.NewProtectiveMBR(sector[:], TotalBlocks)
	if err != nil {
		return fmt.Errorf("image: building protective MBR: %w", err)
	}
	if _, err := w.dev.WriteAt(bs.Bytes(), 0); err != nil {
		return fmt.Errorf("image: writing protective MBR: %w", err)
	}
	return nil
}

func (w *Writer) populatePartitionEntries(entries []byte) error {
	first, err := gpt.ToPartitionEntry(entries[:gpt.SizeOfPartitionEntry])
	if err != nil {
		return err
	}
	partitionGUID, err := w.guids.GUID()
	if err != nil {
		return fmt.Errorf("image: drawing partition GUID: %w", err)
	}

	first.SetPartitionTypeGUID(gpt.EFISystemPartitionGUID)
	first.SetUniquePartitionGUID(partitionGUID)
	first.SetFirstLBA(Alignment)
	first.SetLastLBA(TotalBlocks - Alignment)
	first.SetAttributes(0)
	if err := first.WriteName(partitionName); err != nil {
		return fmt.Errorf("image: encoding partition name: %w", err)
	}
	return nil
}

type headerParams struct {
	lba               int64
	alternateLBA      int64
	partitionEntryLBA int64
	diskGUID          [16]byte
	entryCRC          uint32
}

func (w *Writer) writeHeader(p headerParams) error {
	var buf [gpt.HeaderSizeBytes]byte
	h, err := gpt.NewHeader(buf[:])
	if err != nil {
		return err
	}

	h.SetCurrentLBA(p.lba)
	h.SetBackupLBA(p.alternateLBA)
	h.SetFirstUsableLBA(Alignment)
	h.SetLastUsableLBA(TotalBlocks - Alignment)
	h.SetDiskGUID(p.diskGUID)
	h.SetPartitionEntryLBA(p.partitionEntryLBA)
	h.SetNumberOfPartitionEntries(NumberOfPartitionEntries)
	h.SetSizeOfPartitionEntry(gpt.SizeOfPartitionEntry)
	h.SetCRCOfPartitionEntries(p.entryCRC)

	h.SetCRC(crc32x.Checksum(h.Bytes()))

	if _, err := w.dev.WriteAt(h.Bytes(), p.lba*LBASize); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

func (w *Writer) writeEntries(entries []byte, lba int64) error {
	if _, err := w.dev.WriteAt(entries, lba*LBASize); err != nil {
		return fmt.Errorf("writing partition entry array: %w", err)
	}
	return nil
}

func (w *Writer) buildFAT32(sourceDir string) error {
	partitionView := diskio.View(w.dev, int64(Alignment)*LBASize)
	builder := fat32.NewBuilder(partitionView, w.clock, w.logger)

	if err := builder.Format(); err != nil {
		return fmt.Errorf("image: formatting fat32 volume: %w", err)
	}

	warnings, err := builder.AddTree(sourceDir)
	if err != nil {
		return fmt.Errorf("image: populating fat32 volume: %w", err)
	}

	if err := builder.Close(); err != nil {
		return fmt.Errorf("image: finishing fat32 volume: %w", err)
	}

	if warnings != nil {
		w.logger.Warn("fat32 volume populated with warnings", "error", warnings)
	}
	return nil
}
