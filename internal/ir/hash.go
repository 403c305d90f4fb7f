package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "forge/snapshot/v1"
	DomainEvent    = "forge/event/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash computes the content hash of an entity snapshot.
// Two snapshots with equal values and modifiers hash equal regardless of
// map iteration order.
func SnapshotHash(e *Entity) (string, error) {
	canonical, err := MarshalCanonical(e.canonicalObject())
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// EventHash computes the identity hash of an event, ignoring its sequence
// number. Used as the cycle-detection key for rule firings.
func EventHash(e Event) (string, error) {
	canonical, err := MarshalCanonical(e.identityObject())
	if err != nil {
		return "", fmt.Errorf("EventHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustSnapshotHash is like SnapshotHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSnapshotHash(e *Entity) string {
	h, err := SnapshotHash(e)
	if err != nil {
		panic(err)
	}
	return h
}
