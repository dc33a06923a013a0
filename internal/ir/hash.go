package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInvocation = "automaton/invocation/v1"
	DomainState      = "automaton/state/v1"
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

// StateHash hashes an attribute map. Object keys are marshaled in sorted
// order so equal maps always hash equally.
func StateHash(data IRObject) (string, error) {
	if data == nil {
		data = IRObject{}
	}
	b, err := MarshalIRValue(data)
	if err != nil {
		return "", fmt.Errorf("StateHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, b), nil
}

// InvocationID computes a content-addressed id for a derived invocation.
// The same root flow, trigger, entity, state and sequence number always
// produce the same id.
func InvocationID(rootID string, trigger Trigger, entityID string, data IRObject, seq int64) (string, error) {
	if data == nil {
		data = IRObject{}
	}
	obj := IRObject{
		"root_id":   IRString(rootID),
		"trigger":   IRString(string(trigger)),
		"entity_id": IRString(entityID),
		"data":      data,
		"seq":       IRInt(seq),
	}

	b, err := MarshalIRValue(obj)
	if err != nil {
		return "", fmt.Errorf("InvocationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInvocation, b), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStateHash(data IRObject) string {
	h, err := StateHash(data)
	if err != nil {
		panic(err)
	}
	return h
}
