package fat32

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/bontaos/diskimage/internal/diskio"
)

func newVolume(t *testing.T) diskio.Device {
	t.Helper()
	buf := make([]byte, TotalSectors32*BytesPerSector)
	return diskio.FromSeeker(bytesextra.NewReadWriteSeeker(buf))
}

var fixedNow = FixedClock(time.Date(2024, time.March, 5, 12, 30, 0, 0, time.UTC))

func TestFormatEmptyVolume(t *testing.T) {
	dev := newVolume(t)
	b := NewBuilder(dev, fixedNow, nil)
	require.NoError(t, b.Format())

	warnings, err := b.AddTree(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, warnings)
	require.NoError(t, b.Close())

	var boot [512]byte
	_, err = dev.ReadAt(boot[:], 0)
	require.NoError(t, err)
	require.Equal(t, uint16(0xAA55), binary.LittleEndian.Uint16(boot[510:512]))
	require.Equal(t, "FAT32   ", string(boot[82:90]))

	var fsi [512]byte
	_, err = dev.ReadAt(fsi[:], 512)
	require.NoError(t, err)
	require.Equal(t, uint32(0x41615252), binary.LittleEndian.Uint32(fsi[0:4]))
	require.Equal(t, ClusterCount()-1, binary.LittleEndian.Uint32(fsi[488:492]))
	require.Equal(t, uint32(3), binary.LittleEndian.Uint32(fsi[492:496]))
}

func TestAddTreeFilesAndDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "small.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "exact.bin"), make([]byte, ClusterSize), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "over.bin"), make([]byte, ClusterSize+1), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("nested"), 0o644))

	dev := newVolume(t)
	b := NewBuilder(dev, fixedNow, nil)
	require.NoError(t, b.Format())
	warnings, err := b.AddTree(root)
	require.NoError(t, err)
	require.NoError(t, warnings)
	require.NoError(t, b.Close())

	entries := readRootEntries(t, dev)
	byName := map[[11]byte]rootEntry{}
	for _, e := range entries {
		byName[e.name] = e
	}

	require.Contains(t, byName, formatShortName("small.txt"))
	require.Contains(t, byName, formatShortName("exact.bin"))
	require.Contains(t, byName, formatShortName("over.bin"))
	require.Contains(t, byName, formatShortName("sub"))

	exact := byName[formatShortName("exact.bin")]
	require.Equal(t, uint32(ClusterSize), exact.size)
	require.Equal(t, uint8(0), exact.attr&AttrDirectory)

	over := byName[formatShortName("over.bin")]
	require.Equal(t, uint32(ClusterSize+1), over.size)

	sub := byName[formatShortName("sub")]
	require.Equal(t, uint8(AttrDirectory), sub.attr&AttrDirectory)

	// The nested file must live under sub's own cluster, with "." and ".."
	// as its first two entries.
	subEntries := readClusterEntries(t, dev, sub.firstCluster)
	require.GreaterOrEqual(t, len(subEntries), 3)
	require.Equal(t, dotName(), subEntries[0].name)
	require.Equal(t, dotDotName(), subEntries[1].name)
	require.Equal(t, uint32(0), subEntries[1].firstCluster) // root's parent convention
}

func TestFATChainLinkage(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "over.bin"), make([]byte, ClusterSize+1), 0o644))

	dev := newVolume(t)
	b := NewBuilder(dev, fixedNow, nil)
	require.NoError(t, b.Format())
	warnings, err := b.AddTree(root)
	require.NoError(t, err)
	require.NoError(t, warnings)
	require.NoError(t, b.Close())

	entries := readRootEntries(t, dev)
	var over rootEntry
	for _, e := range entries {
		if e.name == formatShortName("over.bin") {
			over = e
		}
	}
	require.NotZero(t, over.firstCluster)

	// over.bin is ClusterSize+1 bytes, so it occupies exactly two
	// clusters: FAT[firstCluster] must chain to a second cluster, and
	// that second cluster's FAT entry must be the end-of-chain marker,
	// not left pointing further or still free.
	next, err := b.getFAT(over.firstCluster)
	require.NoError(t, err)
	require.NotEqual(t, uint32(0), next)
	require.NotEqual(t, uint32(endOfChain), next)

	terminal, err := b.getFAT(next)
	require.NoError(t, err)
	require.Equal(t, uint32(endOfChain), terminal)

	// Both FAT mirrors must agree, per spec.md's two-identical-FATs
	// invariant.
	var mirror0, mirror1 [4]byte
	_, err = dev.ReadAt(mirror0[:], b.fatEntryOffset(0, over.firstCluster))
	require.NoError(t, err)
	_, err = dev.ReadAt(mirror1[:], b.fatEntryOffset(1, over.firstCluster))
	require.NoError(t, err)
	require.Equal(t, mirror0, mirror1)
}

func TestFormatShortNameQuirk(t *testing.T) {
	// An extension longer than 3 characters is not truncated: it bleeds
	// backward, right-justified against the end of the name field, and
	// overwrites whatever base bytes land in its way. For "file.longext"
	// the 7-character extension exactly fills positions 4-10, so the
	// 4-byte base happens to survive untouched.
	name := formatShortName("file.longext")
	require.Equal(t, "FILELONGEXT", string(name[:]))
}

func TestFormatShortNameQuirkOverwritesBase(t *testing.T) {
	// A still-longer extension eats into bytes the base-name loop already
	// wrote: "hi.longextend" has a 10-character extension, so the
	// right-justified copy starts at position 1, clobbering the second
	// byte of the 2-character base "hi" but leaving the first untouched.
	name := formatShortName("hi.longextend")
	require.Equal(t, "HLONGEXTEND", string(name[:]))
}

func TestFormatShortNameConventional8Dot3(t *testing.T) {
	// A three-character-or-shorter extension lands exactly where a
	// conventional 8.3 name would put it.
	name := formatShortName("small.txt")
	require.Equal(t, "SMALL   TXT", string(name[:]))
}

type rootEntry struct {
	name         [11]byte
	attr         uint8
	firstCluster uint32
	size         uint32
}

func readRootEntries(t *testing.T, dev diskio.Device) []rootEntry {
	t.Helper()
	return readClusterEntries(t, dev, rootCluster)
}

// readClusterEntries reads the 32-byte entries directly out of a
// directory's cluster, stopping at the first free slot.
func readClusterEntries(t *testing.T, dev diskio.Device, cluster uint32) []rootEntry {
	t.Helper()
	off := clusterOffset(cluster)
	var out []rootEntry
	for i := 0; i < ClusterSize/32; i++ {
		var raw [32]byte
		_, err := dev.ReadAt(raw[:], off+int64(i)*32)
		require.NoError(t, err)
		if raw[0] == 0x00 {
			break
		}
		var e rootEntry
		copy(e.name[:], raw[0:11])
		e.attr = raw[11]
		e.firstCluster = uint32(binary.LittleEndian.Uint16(raw[20:22]))<<16 | uint32(binary.LittleEndian.Uint16(raw[26:28]))
		e.size = binary.LittleEndian.Uint32(raw[28:32])
		out = append(out, e)
	}
	return out
}
