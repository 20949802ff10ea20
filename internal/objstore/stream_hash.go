package objstore

import (
	"github.com/zeebo/xxh3"

	"github.com/oxen-vcs/oxen-core/internal/oxenhash"
)

// streamHasher incrementally computes an oxenhash.Hash over data written to
// it, used by PutStream so large blobs never need to be buffered twice.
type streamHasher struct {
	h *xxh3.Hasher
}

func newStreamHasher() *streamHasher {
	return &streamHasher{h: xxh3.New()}
}

func (s *streamHasher) Write(p []byte) (int, error) {
	return s.h.Write(p)
}

func (s *streamHasher) Sum() oxenhash.Hash {
	u := s.h.Sum128()
	var out oxenhash.Hash
	hi, lo := u.Hi, u.Lo
	for i := 7; i >= 0; i-- {
		out[i] = byte(hi)
		hi >>= 8
	}
	for i := 15; i >= 8; i-- {
		out[i] = byte(lo)
		lo >>= 8
	}
	return out
}
