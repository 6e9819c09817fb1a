package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// The version suffix leaves room for algorithm migration.
const (
	DomainPipeline  = "ta2/pipeline/v1"
	DomainPrimitive = "ta2/primitive/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentDigest canonicalizes v and hashes it under domain.
func ContentDigest(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content digest: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}
