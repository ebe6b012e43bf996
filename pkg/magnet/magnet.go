package magnet

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// Build returns the magnet links for the given infohashes: a btih link when a
// v1 hash is present and a btmh link when a v2 hash is present. Either hash
// may be nil.
func Build(name string, trackers, webseeds []string, v1 *[20]byte, v2 *[32]byte) []string {
	var magnets []string
	if v1 != nil {
		magnets = append(magnets, buildBtih(name, trackers, webseeds, *v1))
	}
	if v2 != nil {
		magnets = append(magnets, buildBtmh(name, trackers, webseeds, *v2))
	}
	return magnets
}

func buildBtih(name string, trackers, webseeds []string, hash [20]byte) string {
	link := metainfo.Magnet{
		InfoHash:    metainfo.Hash(hash),
		DisplayName: name,
		Trackers:    trackers,
	}
	if len(webseeds) > 0 {
		link.Params = url.Values{"ws": webseeds}
	}
	return link.String()
}

// buildBtmh assembles the v2 link by hand; the 1220 prefix is the multihash
// header for a 32-byte SHA-256 digest.
func buildBtmh(name string, trackers, webseeds []string, hash [32]byte) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btmh:1220")
	b.WriteString(hex.EncodeToString(hash[:]))
	b.WriteString("&dn=")
	b.WriteString(encodeComponent(name))
	for _, tracker := range trackers {
		b.WriteString("&tr=")
		b.WriteString(encodeComponent(tracker))
	}
	for _, webseed := range webseeds {
		b.WriteString("&ws=")
		b.WriteString(encodeComponent(webseed))
	}
	return b.String()
}

// encodeComponent percent-encodes everything except alphanumerics and -_.~
func encodeComponent(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
