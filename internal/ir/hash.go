package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix leaves room for
// changing the algorithm without colliding with old journals.
const (
	DomainSnapshot = "statekeep/snapshot/v1"
	DomainSpec     = "statekeep/spec/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest identifies the value of a snapshot. Two snapshots of the
// same actor with equal version must share a digest; replay relies on it.
func SnapshotDigest(state StateID, context IRObject, version int64) (string, error) {
	if context == nil {
		context = IRObject{}
	}
	canonical, err := MarshalCanonical(IRObject{
		"context": context,
		"state":   IRString(state),
		"version": IRInt(version),
	})
	if err != nil {
		return "", fmt.Errorf("snapshot digest: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// MustSnapshotDigest is like SnapshotDigest but panics on error.
func MustSnapshotDigest(state StateID, context IRObject, version int64) string {
	d, err := SnapshotDigest(state, context, version)
	if err != nil {
		panic(err)
	}
	return d
}

// SpecHash identifies a compiled machine. Actors journaled under one hash can
// be replayed against any spec with the same hash.
func SpecHash(spec *MachineSpec) (string, error) {
	canonical, err := spec.Canonical()
	if err != nil {
		return "", fmt.Errorf("spec hash: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}
