package hashing

import (
	"crypto/sha1"
	"hash"
)

// V1Hasher computes BitTorrent v1 piece hashes over a byte stream. Bytes are
// folded into a running SHA-1 state and a 20-byte digest is cut every
// pieceLength bytes, so memory use is one hash state no matter how large the
// stream gets.
type V1Hasher struct {
	pieceLength int
	currentLen  int
	hasher      hash.Hash
	pieces      []byte
}

// NewV1Hasher creates a piece hasher for the given piece length. The piece
// length must be positive.
func NewV1Hasher(pieceLength int) *V1Hasher {
	if pieceLength <= 0 {
		panic("hashing: piece length must be positive")
	}
	return &V1Hasher{
		pieceLength: pieceLength,
		hasher:      sha1.New(),
	}
}

// Update feeds the next chunk of the stream. Chunks may be any size and any
// number; piece boundaries are tracked internally.
func (h *V1Hasher) Update(data []byte) {
	for len(data) > 0 {
		take := h.pieceLength - h.currentLen
		if take > len(data) {
			take = len(data)
		}
		h.hasher.Write(data[:take])
		h.currentLen += take
		if h.currentLen == h.pieceLength {
			h.flushPiece()
		}
		data = data[take:]
	}
}

// Finalize consumes the hasher and returns the concatenated 20-byte piece
// digests. A trailing partial piece is hashed at its actual length; an empty
// stream yields no pieces. The hasher must not be updated afterwards.
func (h *V1Hasher) Finalize() []byte {
	if h.currentLen > 0 {
		h.flushPiece()
	}
	return h.pieces
}

func (h *V1Hasher) flushPiece() {
	h.pieces = h.hasher.Sum(h.pieces)
	h.hasher.Reset()
	h.currentLen = 0
}
