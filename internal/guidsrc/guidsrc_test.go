package guidsrc_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bontaos/diskimage/internal/guidsrc"
)

var canonicalGUIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestFixedIsConstant(t *testing.T) {
	f := guidsrc.Fixed{1, 2, 3}
	a, err := f.GUID()
	require.NoError(t, err)
	b, err := f.GUID()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSeededIsDeterministicAcrossSources(t *testing.T) {
	a, err := guidsrc.Seeded(42).GUID()
	require.NoError(t, err)
	b, err := guidsrc.Seeded(42).GUID()
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := guidsrc.Seeded(43).GUID()
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestSeededYieldsDistinctSuccessiveValues(t *testing.T) {
	src := guidsrc.Seeded(7)
	a, err := src.GUID()
	require.NoError(t, err)
	b, err := src.GUID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestStringFormatsAsGUID(t *testing.T) {
	raw := [16]byte{0x28, 0x73, 0x2A, 0xC1, 0x1F, 0xF8, 0xD2, 0x11, 0xBA, 0x4B, 0x00, 0xA0, 0xC9, 0x3E, 0xC9, 0x3B}
	s := guidsrc.String(raw)
	require.Regexp(t, canonicalGUIDPattern, s)
}
