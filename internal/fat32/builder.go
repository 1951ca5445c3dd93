// Package fat32 builds a single FAT32 volume image from a host directory
// tree: format the fixed geometry described in spec.md §3, then walk the
// source tree once, allocating clusters and directory entries as it goes.
package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
)

// Builder constructs a FAT32 volume on a diskio.Device addressed relative
// to the start of the partition. It keeps only the live FSInfo bookkeeping
// in memory — never the full volume — so the device itself (a file or an
// in-memory seeker) owns the bytes.
type Builder struct {
	dev    Device
	clock  Clock
	logger *slog.Logger

	clusterCount uint32
	freeCount    uint32
	nextFree     uint32

	warnings error
}

// Device is the subset of diskio.Device the builder needs: random-access
// reads and writes over the partition's own byte space.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// NewBuilder returns a Builder ready to Format and populate dev.
func NewBuilder(dev Device, clock Clock, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{dev: dev, clock: clock, logger: logger}
}

// Format lays down the boot sector, its backup, both FSInfo sectors, and
// the reserved FAT entries, per spec.md §3 and §4.1.
func (b *Builder) Format() error {
	var sector [BytesPerSector]byte
	writeBPB(sector[:])
	if _, err := b.dev.WriteAt(sector[:], 0); err != nil {
		return fmt.Errorf("fat32: writing boot sector: %w", err)
	}
	if _, err := b.dev.WriteAt(sector[:], int64(backupBootSector)*BytesPerSector); err != nil {
		return fmt.Errorf("fat32: writing backup boot sector: %w", err)
	}

	b.clusterCount = ClusterCount()
	b.freeCount = b.clusterCount - 1
	b.nextFree = 3

	if err := b.flushFSInfo(); err != nil {
		return err
	}

	if err := b.setFATBoth(0, mediaInUse); err != nil {
		return err
	}
	if err := b.setFATBoth(1, endOfChain); err != nil {
		return err
	}
	if err := b.setFATBoth(rootCluster, endOfChain); err != nil {
		return err
	}

	b.logger.Info("formatted fat32 volume", "clusters", b.clusterCount)
	return nil
}

// AddTree walks root depth-first, in the host filesystem's own enumeration
// order, creating a directory entry for every child. Unreadable files and
// unsupported file types are non-fatal: they are skipped and reported
// through warnings rather than err, per spec.md §7. A non-nil err means
// construction could not continue and the output should be discarded.
func (b *Builder) AddTree(root string) (warnings error, err error) {
	if err := b.addDir(root, rootCluster, rootCluster); err != nil {
		return b.warnings, err
	}
	return b.warnings, nil
}

// Close flushes the final FSInfo bookkeeping to both the primary and
// backup sectors. The counters only live in memory until this point.
func (b *Builder) Close() error {
	return b.flushFSInfo()
}

func (b *Builder) flushFSInfo() error {
	var fsi [BytesPerSector]byte
	writeFSInfo(fsi[:], b.freeCount, b.nextFree)
	if _, err := b.dev.WriteAt(fsi[:], int64(fsiSector)*BytesPerSector); err != nil {
		return fmt.Errorf("fat32: writing FSInfo sector: %w", err)
	}
	if _, err := b.dev.WriteAt(fsi[:], int64(backupBootSector+fsiSector)*BytesPerSector); err != nil {
		return fmt.Errorf("fat32: writing backup FSInfo sector: %w", err)
	}
	return nil
}

func (b *Builder) warn(err error) {
	b.warnings = multierror.Append(b.warnings, err)
	b.logger.Warn(err.Error())
}

func (b *Builder) addDir(hostPath string, cluster, parent uint32) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return fmt.Errorf("fat32: opening directory %s: %w", hostPath, err)
	}
	entries, err := f.ReadDir(-1)
	f.Close()
	if err != nil {
		return fmt.Errorf("fat32: reading directory %s: %w", hostPath, err)
	}

	for _, entry := range entries {
		childPath := filepath.Join(hostPath, entry.Name())
		shortName := formatShortName(entry.Name())

		if entry.IsDir() {
			b.logger.Debug("adding directory entry", "path", childPath)
			childCluster, err := b.makeEntry(shortName, cluster, cluster, true, 0)
			if err != nil {
				return fmt.Errorf("fat32: adding directory %s: %w", childPath, err)
			}
			if err := b.addDir(childPath, childCluster, cluster); err != nil {
				return err
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			b.warn(fmt.Errorf("fat32: stat %s: %w", childPath, err))
			continue
		}
		if !info.Mode().IsRegular() {
			b.warn(fmt.Errorf("fat32: skipped %s: unsupported file type", childPath))
			continue
		}

		b.logger.Debug("adding file entry", "path", childPath, "size", info.Size())
		if err := b.addFile(childPath, shortName, cluster, parent, uint32(info.Size())); err != nil {
			return fmt.Errorf("fat32: adding file %s: %w", childPath, err)
		}
	}
	return nil
}

func (b *Builder) addFile(hostPath string, shortName shortName11, parentCluster, grandparentCluster uint32, size uint32) error {
	f, err := os.Open(hostPath)
	if err != nil {
		b.warn(fmt.Errorf("fat32: opening %s: %w", hostPath, err))
		return nil
	}
	defer f.Close()

	firstCluster, err := b.makeEntry(shortName, parentCluster, grandparentCluster, false, size)
	if err != nil {
		return err
	}

	// Cluster count is computed from the size up front, never from
	// whether a read happened to fill the cluster exactly: a file whose
	// size is a multiple of ClusterSize ends exactly on the last full
	// cluster, with no trailing empty cluster appended.
	clusterCount := uint32(1)
	if size > 0 {
		clusterCount = (size + ClusterSize - 1) / ClusterSize
	}

	cluster := firstCluster
	var buf [ClusterSize]byte
	for i := uint32(0); i < clusterCount; i++ {
		n, err := io.ReadFull(f, buf[:])
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return fmt.Errorf("reading %s: %w", hostPath, err)
		}
		if _, err := b.dev.WriteAt(buf[:n], clusterOffset(cluster)); err != nil {
			return fmt.Errorf("writing %s: %w", hostPath, err)
		}

		if i+1 < clusterCount {
			next, err := b.allocCluster()
			if err != nil {
				return err
			}
			if err := b.setFATBoth(cluster, next); err != nil {
				return err
			}
			if err := b.setFATBoth(next, endOfChain); err != nil {
				return err
			}
			cluster = next
		}
	}
	return nil
}

// makeEntry finds an existing child entry named shortName within the
// directory chain starting at firstCluster, or creates one in the first
// free slot, growing the chain with a fresh cluster if every cluster in
// it is full. This replaces the reference implementation's tail-recursive
// chain growth with an explicit loop; the allocation order and resulting
// cluster numbers are unchanged.
func (b *Builder) makeEntry(shortName shortName11, firstCluster, parentCluster uint32, isDir bool, size uint32) (uint32, error) {
	cluster := firstCluster
	for {
		for i := uint32(0); i < entriesPerCluster; i++ {
			raw, err := b.readDirEntryRaw(cluster, i)
			if err != nil {
				return 0, err
			}
			d := newDirEntry(raw)
			if d.free() {
				child, err := b.allocCluster()
				if err != nil {
					return 0, err
				}
				if err := b.setFATBoth(child, endOfChain); err != nil {
					return 0, err
				}

				ts := newFATTimestamp(b.clock.Now())
				writeEntry(raw, shortName, isDir, child, size, ts)
				if err := b.writeDirEntryRaw(cluster, i, raw); err != nil {
					return 0, err
				}

				if isDir {
					if err := b.createDefaultEntries(child, parentCluster); err != nil {
						return 0, err
					}
				}
				return child, nil
			}

			if bytes.Equal(d.nameBytes(), shortName[:]) {
				return d.firstCluster(), nil
			}
		}

		next, err := b.getFAT(cluster)
		if err != nil {
			return 0, err
		}
		if next == endOfChain {
			grown, err := b.allocCluster()
			if err != nil {
				return 0, err
			}
			if err := b.setFATBoth(cluster, grown); err != nil {
				return 0, err
			}
			if err := b.setFATBoth(grown, endOfChain); err != nil {
				return 0, err
			}
			next = grown
		}
		cluster = next
	}
}

// createDefaultEntries writes the "." and ".." entries a new directory
// cluster starts with. A directory directly under the volume root uses 0
// (the root's dedicated cluster-2 convention) as its parent reference,
// per spec.md §4.2.3.
func (b *Builder) createDefaultEntries(cluster, parentCluster uint32) error {
	if parentCluster == rootCluster {
		parentCluster = 0
	}
	ts := newFATTimestamp(b.clock.Now())

	var dot, dotdot [dirEntrySize]byte
	writeEntry(dot[:], dotName(), true, cluster, 0, ts)
	writeEntry(dotdot[:], dotDotName(), true, parentCluster, 0, ts)

	if err := b.writeDirEntryRaw(cluster, 0, dot[:]); err != nil {
		return err
	}
	return b.writeDirEntryRaw(cluster, 1, dotdot[:])
}

func dotName() shortName11 {
	n := shortName11{}
	for i := range n {
		n[i] = ' '
	}
	n[0] = '.'
	return n
}

func dotDotName() shortName11 {
	n := dotName()
	n[1] = '.'
	return n
}

func (b *Builder) allocCluster() (uint32, error) {
	if b.freeCount == 0 {
		return 0, fmt.Errorf("fat32: volume exhausted: no free clusters remain")
	}
	c := b.nextFree
	b.nextFree++
	b.freeCount--
	return c, nil
}

func clusterOffset(cluster uint32) int64 {
	return int64(FirstDataSector()+(cluster-2)*SectorsPerCluster) * BytesPerSector
}

func (b *Builder) readDirEntryRaw(cluster, index uint32) ([]byte, error) {
	buf := make([]byte, dirEntrySize)
	off := clusterOffset(cluster) + int64(index)*dirEntrySize
	if _, err := b.dev.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("fat32: reading directory entry: %w", err)
	}
	return buf, nil
}

func (b *Builder) writeDirEntryRaw(cluster, index uint32, entry []byte) error {
	off := clusterOffset(cluster) + int64(index)*dirEntrySize
	if _, err := b.dev.WriteAt(entry, off); err != nil {
		return fmt.Errorf("fat32: writing directory entry: %w", err)
	}
	return nil
}

func (b *Builder) fatEntryOffset(mirror int, cluster uint32) int64 {
	base := int64(ReservedSectorsCount) * BytesPerSector
	if mirror == 1 {
		base += int64(FATSize32) * BytesPerSector
	}
	return base + int64(cluster)*4
}

func (b *Builder) getFAT(cluster uint32) (uint32, error) {
	var raw [4]byte
	if _, err := b.dev.ReadAt(raw[:], b.fatEntryOffset(0, cluster)); err != nil {
		return 0, fmt.Errorf("fat32: reading FAT entry %d: %w", cluster, err)
	}
	return binary.LittleEndian.Uint32(raw[:]) & clusterMask, nil
}

func (b *Builder) setFATBoth(cluster, value uint32) error {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], value)
	for mirror := 0; mirror < NumberFATs; mirror++ {
		if _, err := b.dev.WriteAt(raw[:], b.fatEntryOffset(mirror, cluster)); err != nil {
			return fmt.Errorf("fat32: writing FAT entry %d: %w", cluster, err)
		}
	}
	return nil
}
