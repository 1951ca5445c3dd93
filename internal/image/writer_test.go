package image_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/bontaos/diskimage/internal/crc32x"
	"github.com/bontaos/diskimage/internal/diskio"
	"github.com/bontaos/diskimage/internal/fat32"
	"github.com/bontaos/diskimage/internal/gpt"
	"github.com/bontaos/diskimage/internal/guidsrc"
	"github.com/bontaos/diskimage/internal/image"
)

func buildTestImage(t *testing.T, sourceDir string) diskio.Device {
	t.Helper()
	buf := make([]byte, int64(image.TotalBlocks)*image.LBASize)
	dev := diskio.FromSeeker(bytesextra.NewReadWriteSeeker(buf))

	clock := fat32.FixedClock(time.Date(2024, time.March, 5, 12, 30, 0, 0, time.UTC))
	w := image.NewWriter(dev, guidsrc.Seeded(1), clock, nil)
	require.NoError(t, w.Build(sourceDir))
	return dev
}

func TestBuildEmptyDirectory(t *testing.T) {
	dev := buildTestImage(t, t.TempDir())

	var mbrSector [512]byte
	_, err := dev.ReadAt(mbrSector[:], 0)
	require.NoError(t, err)
	require.Equal(t, uint16(0xAA55), binary.LittleEndian.Uint16(mbrSector[510:512]))
	require.Equal(t, byte(0xEE), mbrSector[450]) // partition record 0's OsType

	var header [92]byte
	_, err = dev.ReadAt(header[:], int64(image.LBASize))
	require.NoError(t, err)
	h, err := gpt.ToHeader(header[:])
	require.NoError(t, err)
	require.Equal(t, gpt.SignatureEFIPART, h.Signature())
	require.Equal(t, int64(1), h.CurrentLBA())
	require.Equal(t, int64(image.TotalBlocks-1), h.BackupLBA())
	require.Equal(t, uint32(image.NumberOfPartitionEntries), h.NumberOfPartitionEntries())

	headerCRC := h.CRC()
	h.SetCRC(0)
	require.Equal(t, headerCRC, crc32x.Checksum(h.Bytes()))

	var firstEntry [128]byte
	_, err = dev.ReadAt(firstEntry[:], 2*int64(image.LBASize))
	require.NoError(t, err)
	pe, err := gpt.ToPartitionEntry(firstEntry[:])
	require.NoError(t, err)
	require.Equal(t, gpt.EFISystemPartitionGUID, pe.PartitionTypeGUID())
	require.Equal(t, int64(image.Alignment), pe.FirstLBA())

	var nameBuf [64]byte
	n, err := pe.ReadName(nameBuf[:])
	require.NoError(t, err)
	require.Equal(t, "BontaOS.hdd1", string(nameBuf[:n]))

	var backupHeaderRaw [92]byte
	_, err = dev.ReadAt(backupHeaderRaw[:], int64(image.TotalBlocks-1)*int64(image.LBASize))
	require.NoError(t, err)
	bh, err := gpt.ToHeader(backupHeaderRaw[:])
	require.NoError(t, err)
	require.Equal(t, h.DiskGUID(), bh.DiskGUID())
	require.Equal(t, int64(image.TotalBlocks-1), bh.CurrentLBA())
	require.Equal(t, int64(1), bh.BackupLBA())
}

func TestBuildWithFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644))

	dev := buildTestImage(t, root)

	firstDataSector := int64(fat32.FirstDataSector())
	partitionBase := int64(image.Alignment) * image.LBASize
	var entry [32]byte
	_, err := dev.ReadAt(entry[:], partitionBase+firstDataSector*fat32.BytesPerSector)
	require.NoError(t, err)
	require.NotEqual(t, byte(0x00), entry[0])
	require.Equal(t, uint32(len("hello world")), binary.LittleEndian.Uint32(entry[28:32]))
}
