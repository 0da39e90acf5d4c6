package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDigestDeterministic(t *testing.T) {
	ctx := IRObject{"count": IRInt(10)}

	d1, err := SnapshotDigest("active", ctx, 11)
	require.NoError(t, err)
	d2, err := SnapshotDigest("active", IRObject{"count": IRInt(10)}, 11)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestSnapshotDigestChangesWithInput(t *testing.T) {
	base := MustSnapshotDigest("active", IRObject{"count": IRInt(1)}, 1)

	assert.NotEqual(t, base, MustSnapshotDigest("inactive", IRObject{"count": IRInt(1)}, 1))
	assert.NotEqual(t, base, MustSnapshotDigest("active", IRObject{"count": IRInt(2)}, 1))
	assert.NotEqual(t, base, MustSnapshotDigest("active", IRObject{"count": IRInt(1)}, 2))
}

func TestSnapshotDigestDomainSeparation(t *testing.T) {
	canonical := `{"context":{},"state":"idle","version":0}`

	h := sha256.New()
	h.Write([]byte(DomainSnapshot))
	h.Write([]byte{0x00})
	h.Write([]byte(canonical))
	expected := hex.EncodeToString(h.Sum(nil))

	assert.Equal(t, expected, MustSnapshotDigest("idle", nil, 0))
	assert.NotEqual(t, hashWithDomain(DomainSpec, []byte(canonical)), expected)
}

func TestSnapshotDigestRejectsNull(t *testing.T) {
	_, err := SnapshotDigest("idle", IRObject{"x": IRNull{}}, 0)
	require.Error(t, err)
	assert.Panics(t, func() { MustSnapshotDigest("idle", IRObject{"x": IRNull{}}, 0) })
}

func TestSpecHashIgnoresContextKeyOrder(t *testing.T) {
	a := &MachineSpec{Name: "m", Initial: "s", States: []StateID{"s"}, Context: IRObject{"a": IRInt(1), "b": IRInt(2)}}
	b := &MachineSpec{Name: "m", Initial: "s", States: []StateID{"s"}, Context: IRObject{"b": IRInt(2), "a": IRInt(1)}}

	ha, err := SpecHash(a)
	require.NoError(t, err)
	hb, err := SpecHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Initial = "t"
	hc, err := SpecHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestSnapshotDigestKnownValue(t *testing.T) {
	// SHA256("statekeep/snapshot/v1" || 0x00 || {"context":{"count":0},"state":"inactive","version":0})
	d := MustSnapshotDigest("inactive", IRObject{"count": IRInt(0)}, 0)
	assert.Equal(t, "8e1dbd3e7fd1b2ec089147339673a210796cd9955d48c04710a2631396cbe174", d)
}
