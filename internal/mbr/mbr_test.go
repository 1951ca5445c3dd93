package mbr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bontaos/diskimage/internal/mbr"
)

func TestNewProtectiveMBR(t *testing.T) {
	buf := make([]byte, 512)
	bs, err := mbr.NewProtectiveMBR(buf, 8392704)
	require.NoError(t, err)

	require.Equal(t, uint16(0xAA55), bs.BootSignature())

	pte := bs.PartitionTable(0)
	require.Equal(t, mbr.PartitionTypeEFIGPTProtective, pte.PartitionType())
	require.Equal(t, uint32(1), pte.StartLBA())
	require.Equal(t, uint32(8392704-1), pte.NumberOfLBA())

	other := bs.PartitionTable(1)
	require.Equal(t, mbr.PartitionTypeUnused, other.PartitionType())
}
