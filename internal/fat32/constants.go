package fat32

// Volume geometry, fixed per spec.md §3. The partition this builder formats
// is always exactly TotalSectors32 sectors of BytesPerSector bytes — the
// image writer is responsible for giving the builder a diskio.Device view
// sized accordingly.
const (
	BytesPerSector    = 512
	SectorsPerCluster = 8
	ClusterSize       = BytesPerSector * SectorsPerCluster // 4096

	ReservedSectorsCount = 32
	NumberFATs           = 2

	// TotalSectors32 is the FAT32 volume size in sectors: 4 GiB / 512 B.
	TotalSectors32 = 4 * 1024 * 1024 * 1024 / BytesPerSector

	rootCluster = 2

	fsiSector       = 1
	backupBootSector = 6

	// endOfChain marks the last cluster in a chain. Only the low 28 bits
	// of a FAT32 entry are significant.
	endOfChain   = 0x0FFFFFFF
	mediaInUse   = 0x0FFFFFF0
	clusterMask  = 0x0FFFFFFF
	dirEntrySize = 32
	entriesPerCluster = ClusterSize / dirEntrySize // 128

	attrDirectory = 0x10
)

// fatSize32 computes FATSize32 per the standard formula (spec.md §3):
// D = TotalSectors32 - ReservedSectorsCount
// T = (256*SectorsPerCluster + NumberFATs) / 2
// FATSize32 = ceil(D / T)
func fatSize32() uint32 {
	d := uint32(TotalSectors32 - ReservedSectorsCount)
	t := uint32((256*SectorsPerCluster + NumberFATs) / 2)
	return (d + t - 1) / t
}

// FATSize32 is the precomputed FAT size in sectors for these fixed
// constants (8184, a shade under 4 MiB per FAT).
var FATSize32 = fatSize32()

// FirstDataSector is the sector offset (within the partition) of cluster 2.
func FirstDataSector() uint32 {
	return ReservedSectorsCount + NumberFATs*FATSize32
}

// ClusterCount is the number of data clusters available in the volume.
func ClusterCount() uint32 {
	dataSectors := uint32(TotalSectors32) - FirstDataSector()
	return dataSectors / SectorsPerCluster
}
