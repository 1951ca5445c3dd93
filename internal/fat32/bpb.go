package fat32

import "encoding/binary"

// Byte offsets within the FAT32 boot sector, matching the Microsoft BPB
// layout also documented in the teacher's tables.go (bpbBytsPerSec,
// bpbSecPerClus, ...), trimmed to only the FAT32 fields this builder needs.
const (
	offJumpBoot       = 0
	offOEMName        = 3
	offBytesPerSector = 11
	offSecPerClus     = 13
	offRsvdSecCnt     = 14
	offNumFATs        = 16
	offRootEntCnt     = 17
	offTotSec16       = 19
	offMedia          = 21
	offFATSz16        = 22
	offSecPerTrk      = 24
	offNumHeads       = 26
	offHiddenSec      = 28
	offTotSec32       = 32
	offFATSz32        = 36
	offExtFlags       = 40
	offFSVer          = 42
	offRootClus       = 44
	offFSInfo         = 48
	offBkBootSec      = 50
	offDrvNum         = 64
	offNTRes          = 65
	offBootSig        = 66
	offVolID          = 67
	offVolLab         = 71
	offFilSysType     = 82
	offBS55AA         = 510
)

// bpb is a view over the 512-byte BIOS Parameter Block / boot sector.
type bpb struct {
	data []byte
}

func newBPB(sector []byte) bpb {
	return bpb{data: sector[:BytesPerSector:BytesPerSector]}
}

func (b bpb) setJumpBoot(j [3]byte)  { copy(b.data[offJumpBoot:], j[:]) }
func (b bpb) setOEMName(name string) { copyPadded(b.data[offOEMName:offOEMName+8], name, ' ') }

func (b bpb) setBytesPerSector(v uint16) { binary.LittleEndian.PutUint16(b.data[offBytesPerSector:], v) }
func (b bpb) setSectorsPerCluster(v uint8) { b.data[offSecPerClus] = v }
func (b bpb) setReservedSectors(v uint16)  { binary.LittleEndian.PutUint16(b.data[offRsvdSecCnt:], v) }
func (b bpb) setNumberFATs(v uint8)        { b.data[offNumFATs] = v }
func (b bpb) setRootEntryCount(v uint16)   { binary.LittleEndian.PutUint16(b.data[offRootEntCnt:], v) }
func (b bpb) setMedia(v uint8)             { b.data[offMedia] = v }
func (b bpb) setHiddenSectors(v uint32)    { binary.LittleEndian.PutUint32(b.data[offHiddenSec:], v) }
func (b bpb) setTotalSectors32(v uint32)   { binary.LittleEndian.PutUint32(b.data[offTotSec32:], v) }
func (b bpb) setFATSize32(v uint32)        { binary.LittleEndian.PutUint32(b.data[offFATSz32:], v) }
func (b bpb) setRootCluster(v uint32)      { binary.LittleEndian.PutUint32(b.data[offRootClus:], v) }
func (b bpb) setFSInfoSector(v uint16)     { binary.LittleEndian.PutUint16(b.data[offFSInfo:], v) }
func (b bpb) setBackupBootSector(v uint16) { binary.LittleEndian.PutUint16(b.data[offBkBootSec:], v) }
func (b bpb) setDriveNumber(v uint8)       { b.data[offDrvNum] = v }
func (b bpb) setExtendedBootSignature(v uint8) { b.data[offBootSig] = v }
func (b bpb) setVolumeID(v uint32)         { binary.LittleEndian.PutUint32(b.data[offVolID:], v) }
func (b bpb) setVolumeLabel(s string)      { copyPadded(b.data[offVolLab:offVolLab+11], s, ' ') }
func (b bpb) setFileSystemType(s string)   { copyPadded(b.data[offFilSysType:offFilSysType+8], s, ' ') }
func (b bpb) setBootSignature(v uint16)    { binary.LittleEndian.PutUint16(b.data[offBS55AA:], v) }

func (b bpb) fatSize32() uint32    { return binary.LittleEndian.Uint32(b.data[offFATSz32:]) }
func (b bpb) reservedSectors() uint16 { return binary.LittleEndian.Uint16(b.data[offRsvdSecCnt:]) }
func (b bpb) numberFATs() uint8    { return b.data[offNumFATs] }
func (b bpb) rootCluster() uint32  { return binary.LittleEndian.Uint32(b.data[offRootClus:]) }

func copyPadded(dst []byte, s string, pad byte) {
	for i := range dst {
		dst[i] = pad
	}
	copy(dst, s)
}

// writeBPB fills sector with the fixed FAT32 BPB spec.md §3 describes.
func writeBPB(sector []byte) bpb {
	b := newBPB(sector)
	b.setJumpBoot([3]byte{0xEB, 0x00, 0x90})
	b.setOEMName("MSWIN4.1")
	b.setBytesPerSector(BytesPerSector)
	b.setSectorsPerCluster(SectorsPerCluster)
	b.setReservedSectors(ReservedSectorsCount)
	b.setNumberFATs(NumberFATs)
	b.setRootEntryCount(0)
	b.setMedia(0xF0)
	b.setHiddenSectors(2048)
	b.setTotalSectors32(TotalSectors32)
	b.setFATSize32(FATSize32)
	b.setRootCluster(rootCluster)
	b.setFSInfoSector(fsiSector)
	b.setBackupBootSector(backupBootSector)
	b.setDriveNumber(0x80)
	b.setExtendedBootSignature(0x29)
	b.setVolumeID(0x12348888)
	b.setVolumeLabel("NO NAME")
	b.setFileSystemType("FAT32")
	b.setBootSignature(0xAA55)
	return b
}
