package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChoosePieceLength(t *testing.T) {
	for _, tc := range []struct {
		size uint64
		want int
	}{
		{0, 256 * kib},
		{128 * mib, 256 * kib},
		{128*mib + 1, 512 * kib},
		{1 * gib, 512 * kib},
		{1*gib + 1, 1 * mib},
		{4 * gib, 1 * mib},
		{4*gib + 1, 2 * mib},
		{16 * gib, 2 * mib},
		{16*gib + 1, 4 * mib},
		{64 * gib, 4 * mib},
		{64*gib + 1, 8 * mib},
	} {
		require.Equal(t, tc.want, ChoosePieceLength(tc.size), "size %d", tc.size)
	}
}
