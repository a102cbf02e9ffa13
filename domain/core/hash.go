package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// DatasetHash fingerprints the exact numeric inputs of an estimation run.
type DatasetHash Hash

func (h DatasetHash) String() string { return Hash(h).String() }

// ComputeDatasetHash hashes row identifiers and the raw IEEE-754 bits of every
// column so that two runs on bit-identical inputs share a fingerprint.
func ComputeDatasetHash(index []string, columns ...[]float64) DatasetHash {
	hasher := sha256.New()
	var buf [8]byte
	for _, id := range index {
		hasher.Write([]byte(id))
		hasher.Write([]byte{0})
	}
	for _, col := range columns {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(col)))
		hasher.Write(buf[:])
		for _, v := range col {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			hasher.Write(buf[:])
		}
	}
	return DatasetHash(hex.EncodeToString(hasher.Sum(nil)))
}
