package hashing

import (
	"crypto/sha256"
)

// LeafSize is the fixed merkle leaf size of the v2 hash tree (BEP 52).
const LeafSize = 16 * 1024

// V2Summary is the hashing core's handoff to the metainfo assembler:
// the merkle root over the whole leaf sequence and the concatenated per-piece
// sub-roots. Its absence means "emit a v1-only torrent".
type V2Summary struct {
	PiecesRoot  [32]byte
	PieceLayers []byte
}

// V2Hasher computes the BitTorrent v2 merkle structures over a byte stream.
// Full 16 KiB leaves are hashed as they complete and their digests spilled to
// a leaf store, so only one leaf's worth of data is buffered at a time.
type V2Hasher struct {
	buffer     []byte
	store      leafStore
	leafCount  int
	totalBytes uint64
}

// NewV2Hasher creates a leaf hasher backed by a temporary spill file.
func NewV2Hasher() (*V2Hasher, error) {
	store, err := newFileLeafStore()
	if err != nil {
		return nil, err
	}
	return newV2HasherWithStore(store), nil
}

func newV2HasherWithStore(store leafStore) *V2Hasher {
	return &V2Hasher{
		buffer: make([]byte, 0, LeafSize),
		store:  store,
	}
}

// Update feeds the next chunk of the stream. Chunks may be any size; leaf
// boundaries are tracked internally. A store write failure is fatal for the
// v2 path; the caller decides whether to fall back to a v1-only torrent.
func (h *V2Hasher) Update(data []byte) error {
	h.totalBytes += uint64(len(data))
	for len(data) > 0 {
		take := LeafSize - len(h.buffer)
		if take > len(data) {
			take = len(data)
		}
		h.buffer = append(h.buffer, data[:take]...)
		data = data[take:]
		if len(h.buffer) == LeafSize {
			if err := h.flushLeaf(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Finalize consumes the hasher: it flushes a trailing partial leaf (hashed at
// its actual length, never padded), reads the leaf digests back and reduces
// them to the summary. pieceLength is the v1 piece length the piece layers
// are grouped by. The hasher must not be updated afterwards.
func (h *V2Hasher) Finalize(pieceLength int) (*V2Summary, error) {
	defer h.store.close()

	if len(h.buffer) > 0 {
		if err := h.flushLeaf(); err != nil {
			return nil, err
		}
	}

	// An empty stream still gets one synthetic leaf so the tree has a root.
	if h.leafCount == 0 {
		if err := h.writeLeaf(sha256.Sum256(nil)); err != nil {
			return nil, err
		}
	}

	leaves, err := h.store.readBack(h.leafCount)
	if err != nil {
		return nil, err
	}

	var pieceCount int
	if h.totalBytes > 0 {
		pieceCount = int((h.totalBytes + uint64(pieceLength) - 1) / uint64(pieceLength))
	}

	summary := &V2Summary{PiecesRoot: merkleRoot(leaves)}
	if pieceCount > 0 {
		summary.PieceLayers = buildPieceLayers(leaves, pieceLength, pieceCount)
	}
	return summary, nil
}

// Close releases the leaf store without producing a summary. Call it when
// the v2 pass is abandoned before Finalize, for example after an Update
// failure; Finalize closes the store itself.
func (h *V2Hasher) Close() error {
	return h.store.close()
}

func (h *V2Hasher) flushLeaf() error {
	digest := sha256.Sum256(h.buffer)
	h.buffer = h.buffer[:0]
	return h.writeLeaf(digest)
}

func (h *V2Hasher) writeLeaf(digest [32]byte) error {
	if err := h.store.append(digest); err != nil {
		return err
	}
	h.leafCount++
	return nil
}

// buildPieceLayers partitions the leaf sequence into ceil(pieceLength/LeafSize)
// leaves per v1 piece and concatenates each group's merkle root, in piece
// order. The final group is truncated when the leaves run out early.
func buildPieceLayers(leaves [][32]byte, pieceLength, pieceCount int) []byte {
	leavesPerPiece := (pieceLength + LeafSize - 1) / LeafSize
	layers := make([]byte, 0, pieceCount*32)
	index := 0
	for i := 0; i < pieceCount && index < len(leaves); i++ {
		end := index + leavesPerPiece
		if end > len(leaves) {
			end = len(leaves)
		}
		root := merkleRoot(leaves[index:end])
		layers = append(layers, root[:]...)
		index = end
	}
	return layers
}

// merkleRoot reduces an ordered leaf sequence to its merkle root: a level
// with an odd node count greater than one duplicates its last node before
// pairing adjacent nodes into SHA256(left || right). A single node is the
// root unchanged, and the root of no leaves is the hash of the empty string.
// The input slice is not modified.
func merkleRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return sha256.Sum256(nil)
	}
	level := make([][32]byte, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := level[:0]
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right [32]byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(left[:])
	hasher.Write(right[:])
	var digest [32]byte
	hasher.Sum(digest[:0])
	return digest
}
