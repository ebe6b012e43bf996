package hashing

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
)

// ChoosePieceLength picks a v1 piece length for a source of the given size,
// keeping the piece count reasonable (around 16k pieces at the top of each
// band).
func ChoosePieceLength(size uint64) int {
	switch {
	case size <= 128*mib:
		return 256 * kib
	case size <= 1*gib:
		return 512 * kib
	case size <= 4*gib:
		return 1 * mib
	case size <= 16*gib:
		return 2 * mib
	case size <= 64*gib:
		return 4 * mib
	default:
		return 8 * mib
	}
}
