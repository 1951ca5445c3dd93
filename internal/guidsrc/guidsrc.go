// Package guidsrc is the "16-byte randomness source" external collaborator
// spec.md §6 describes: get_guid(out[16]). The image writer only ever asks
// it for raw bytes to drop into a GPT field; it never interprets them.
package guidsrc

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	winioguid "github.com/Microsoft/go-winio/pkg/guid"
)

// Source yields 16 bytes of GUID material on demand.
type Source interface {
	GUID() ([16]byte, error)
}

// Random is the production Source, backed by crypto/rand.
type Random struct{}

func (Random) GUID() ([16]byte, error) {
	var b [16]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return b, fmt.Errorf("guidsrc: reading randomness: %w", err)
	}
	return b, nil
}

// Fixed is a deterministic Source used to make image construction
// reproducible in tests, per spec.md §8's "determinism modulo GUIDs"
// law: stub the GUID source to a constant and two runs over the same
// input tree must be byte-identical.
type Fixed [16]byte

func (f Fixed) GUID() ([16]byte, error) {
	return [16]byte(f), nil
}

// Seeded returns a deterministic Source driven by an unexported
// pseudo-random generator: reproducible across runs given the same seed,
// but unlike Fixed it hands out a different value on every call, matching
// the shape a real GUID source has (each GPT field gets its own value)
// while remaining suitable for the --guid-seed debug flag.
func Seeded(seed uint64) Source {
	return &seeded{rnd: rand.New(rand.NewSource(int64(seed)))}
}

type seeded struct {
	rnd *rand.Rand
}

func (s *seeded) GUID() ([16]byte, error) {
	var b [16]byte
	_, _ = s.rnd.Read(b[:])
	return b, nil
}

// String formats a raw GPT-wire GUID (mixed-endian, as stored on disk)
// for logging, by way of github.com/Microsoft/go-winio/pkg/guid — the
// same mixed-endian GUID representation hcsshim uses for on-disk/wire
// GUIDs. The struct is assembled field-by-field from the known GPT wire
// layout rather than via a library decode helper, so correctness never
// depends on guessing the library's exact conversion API.
func String(raw [16]byte) string {
	g := winioguid.GUID{
		Data1: binary.LittleEndian.Uint32(raw[0:4]),
		Data2: binary.LittleEndian.Uint16(raw[4:6]),
		Data3: binary.LittleEndian.Uint16(raw[6:8]),
		Data4: [8]byte(raw[8:16]),
	}
	return g.String()
}
