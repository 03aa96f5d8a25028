package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// SampleCommitment is the hex sha256 published before sampling. It commits to
// the seed and the manifest order, which together fix every ballot's sample
// number.
type SampleCommitment string

func (h SampleCommitment) String() string { return string(h) }

// Matches reports whether seed and ids reproduce the commitment
func (h SampleCommitment) Matches(seed int64, ids []BallotID) bool {
	return ComputeSampleCommitment(seed, ids) == h
}

// ComputeSampleCommitment hashes the seed followed by the manifest ids in order.
func ComputeSampleCommitment(seed int64, ids []BallotID) SampleCommitment {
	hasher := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	hasher.Write(buf[:])
	for _, id := range ids {
		hasher.Write([]byte(id))
		hasher.Write([]byte{0})
	}
	return SampleCommitment(hex.EncodeToString(hasher.Sum(nil)))
}
