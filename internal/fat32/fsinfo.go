package fat32

import "encoding/binary"

const (
	fsiLeadSigOff  = 0
	fsiStrucSigOff = 484
	fsiFreeCntOff  = 488
	fsiNxtFreeOff  = 492
	fsiTrailSigOff = 508

	fsiLeadSignature  = 0x41615252
	fsiStrucSignature = 0x61417272
	fsiTrailSignature = 0xAA550000
)

// fsInfo is a view over the 512-byte FSInfo sector: the FAT32 bump
// allocator's free-cluster count and next-free hint.
type fsInfo struct {
	data []byte
}

func newFSInfo(sector []byte) fsInfo {
	return fsInfo{data: sector[:BytesPerSector:BytesPerSector]}
}

func (f fsInfo) freeCount() uint32 {
	return binary.LittleEndian.Uint32(f.data[fsiFreeCntOff:])
}

func (f fsInfo) setFreeCount(v uint32) {
	binary.LittleEndian.PutUint32(f.data[fsiFreeCntOff:], v)
}

func (f fsInfo) nextFree() uint32 {
	return binary.LittleEndian.Uint32(f.data[fsiNxtFreeOff:])
}

func (f fsInfo) setNextFree(v uint32) {
	binary.LittleEndian.PutUint32(f.data[fsiNxtFreeOff:], v)
}

// writeFSInfo fills sector with the signatures and the given free-cluster
// bookkeeping: freeCount as the free-cluster count and nextFreeHint as the
// next-free hint. The builder calls it both right after formatting and
// again with its final counters.
func writeFSInfo(sector []byte, freeCount uint32, nextFreeHint uint32) fsInfo {
	f := newFSInfo(sector)
	binary.LittleEndian.PutUint32(f.data[fsiLeadSigOff:], fsiLeadSignature)
	binary.LittleEndian.PutUint32(f.data[fsiStrucSigOff:], fsiStrucSignature)
	f.setFreeCount(freeCount)
	f.setNextFree(nextFreeHint)
	binary.LittleEndian.PutUint32(f.data[fsiTrailSigOff:], fsiTrailSignature)
	return f
}
