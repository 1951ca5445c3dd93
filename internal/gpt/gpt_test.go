package gpt_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bontaos/diskimage/internal/gpt"
)

func TestNewHeaderDefaults(t *testing.T) {
	buf := make([]byte, gpt.HeaderSizeBytes)
	h, err := gpt.NewHeader(buf)
	require.NoError(t, err)
	require.Equal(t, gpt.SignatureEFIPART, h.Signature())
	require.Equal(t, gpt.RevisionV1_0, h.Revision())
	require.Equal(t, uint32(gpt.HeaderSizeBytes), h.Size())
	require.Equal(t, uint32(0), h.CRC())
}

func TestPartitionEntryNameRoundTrip(t *testing.T) {
	buf := make([]byte, gpt.SizeOfPartitionEntry)
	pe, err := gpt.ToPartitionEntry(buf)
	require.NoError(t, err)

	require.NoError(t, pe.WriteName("BontaOS.hdd1"))

	var out [64]byte
	n, err := pe.ReadName(out[:])
	require.NoError(t, err)
	require.Equal(t, "BontaOS.hdd1", string(out[:n]))
}

func TestEntryArraySize(t *testing.T) {
	require.Equal(t, 8184*128, gpt.EntryArraySize(8184))
}
