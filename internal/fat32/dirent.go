package fat32

import (
	"encoding/binary"
	"strings"
)

// Directory entry attribute bits. The builder itself only ever sets
// AttrDirectory.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolumeID = 0x08
	AttrDirectory = 0x10
	AttrArchive  = 0x20
)

// dirEntry is a view over one 32-byte FAT32 short directory entry.
type dirEntry struct {
	data []byte
}

func newDirEntry(b []byte) dirEntry {
	return dirEntry{data: b[:dirEntrySize:dirEntrySize]}
}

func (d dirEntry) free() bool { return d.data[0] == 0x00 || d.data[0] == 0xE5 }

func (d dirEntry) nameBytes() []byte { return d.data[0:11] }

func (d dirEntry) firstCluster() uint32 {
	hi := binary.LittleEndian.Uint16(d.data[20:22])
	lo := binary.LittleEndian.Uint16(d.data[26:28])
	return uint32(hi)<<16 | uint32(lo)
}

// writeEntry fills the 32-byte entry in place, following the layout and
// field-setting order of the reference implementation's directory entry
// builder: name, attribute, timestamps derived from a single captured
// moment, cluster number split across the high/low halves, and size.
// WriteTime is deliberately left zero: the reference builder captures a
// time/date pair once and only ever stores the date half into WriteDate,
// never the time half into WriteTime.
func writeEntry(b []byte, shortName [11]byte, isDir bool, cluster, size uint32, at fatTimestamp) {
	d := newDirEntry(b)
	copy(d.data[0:11], shortName[:])

	attr := byte(0)
	if isDir {
		attr = AttrDirectory
	}
	d.data[11] = attr
	d.data[12] = 0 // NTReserved
	d.data[13] = 0 // CreationTimeTenth

	binary.LittleEndian.PutUint16(d.data[14:16], at.time) // CreationTime
	binary.LittleEndian.PutUint16(d.data[16:18], at.date) // CreationDate
	binary.LittleEndian.PutUint16(d.data[18:20], at.date) // LastAccessDate
	binary.LittleEndian.PutUint16(d.data[20:22], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(d.data[22:24], 0) // WriteTime, never set
	binary.LittleEndian.PutUint16(d.data[24:26], at.date) // WriteDate
	binary.LittleEndian.PutUint16(d.data[26:28], uint16(cluster))
	binary.LittleEndian.PutUint32(d.data[28:32], size)
}

// shortName11 is the on-disk, space-padded, upper-cased 8.3 name.
type shortName11 = [11]byte

// formatShortName reproduces the reference implementation's _format_name,
// quirk and all: it is not a conventional 8.3 truncation. The base name is
// copied byte-for-byte up to the first '.'; everything after the dot
// (including its would-be NUL terminator) is then right-justified so its
// last character lands in the name field's final byte, regardless of
// where the dot fell. For a three-character-or-shorter extension that's
// the ordinary 8.3 placement, but a longer extension bleeds backward and
// overwrites however much of the base field it needs to, including bytes
// the base-name loop already wrote — the reference never truncates the
// extension, it clobbers the base.
func formatShortName(name string) shortName11 {
	var out shortName11
	for i := range out {
		out[i] = ' '
	}

	upper := strings.ToUpper(name)
	dot := strings.IndexByte(upper, '.')
	if dot < 0 {
		base := upper
		if len(base) > len(out) {
			base = base[:len(out)] // reference has no bound here; clamped to the fixed-size field
		}
		copy(out[:], base)
		return out
	}

	base := upper[:dot]
	if len(base) > len(out) {
		base = base[:len(out)]
	}
	copy(out[:], base)

	ext := upper[dot+1:]
	start := len(out) - len(ext)
	for i := 0; i < len(ext); i++ {
		pos := start + i
		if pos < 0 || pos >= len(out) {
			continue // reference writes past its buffer here; not reproduced
		}
		out[pos] = ext[i]
	}

	return out
}
