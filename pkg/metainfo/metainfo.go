package metainfo

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"

	"github.com/zeebo/bencode"

	"torseed/pkg/hashing"
)

// BuildInput carries everything the assembler needs. It is constructed once
// per run, after the hashing pass completes, and never mutated.
type BuildInput struct {
	Name         string
	Length       uint64
	PieceLength  uint32
	Pieces       []byte             // concatenated 20-byte v1 piece digests
	Trackers     []string           // must be non-empty; first entry becomes "announce"
	Webseeds     []string           // may be empty
	CreationDate int64              // unix seconds
	CreatedBy    string
	V2           *hashing.V2Summary // nil for a v1-only torrent
}

// Metainfo is the finished torrent document plus the protocol identifiers
// derived from its info dictionaries.
type Metainfo struct {
	Torrent    []byte
	InfohashV1 *[20]byte
	InfohashV2 *[32]byte // present iff a v2 summary was supplied
}

type dict = map[string]interface{}

// Build assembles the v1, v2 and combined info dictionaries from the input,
// derives both infohashes and serializes the root document. The v1 and v2
// dictionaries are encoded from their own snapshots before being merged, so
// each infohash covers exactly its own key set.
//
// Dictionary keys are emitted in strictly ascending byte order by the bencode
// encoder; that canonical form is what feeds the hashes.
func Build(input *BuildInput) (*Metainfo, error) {
	if len(input.Trackers) == 0 {
		return nil, errors.New("at least one tracker is required")
	}

	length, err := int64From(input.Length)
	if err != nil {
		return nil, fmt.Errorf("content length: %w", err)
	}

	encodedV1, err := encodeDict(infoV1Dict(input, length), "v1 info")
	if err != nil {
		return nil, err
	}
	v1Hash := sha1.Sum(encodedV1)
	meta := &Metainfo{InfohashV1: &v1Hash}

	infoFull := infoV1Dict(input, length)
	if input.V2 != nil {
		infoV2 := infoV2Dict(input, length, input.V2)
		encodedV2, err := encodeDict(infoV2, "v2 info")
		if err != nil {
			return nil, err
		}
		v2Hash := sha256.Sum256(encodedV2)
		meta.InfohashV2 = &v2Hash
		for key, value := range infoV2 {
			infoFull[key] = value
		}
	}

	torrent, err := encodeDict(rootDict(input, infoFull), "root")
	if err != nil {
		return nil, err
	}
	meta.Torrent = torrent
	return meta, nil
}

func infoV1Dict(input *BuildInput, length int64) dict {
	return dict{
		"length":       length,
		"name":         input.Name,
		"piece length": int64(input.PieceLength),
		"pieces":       input.Pieces,
	}
}

func infoV2Dict(input *BuildInput, length int64, v2 *hashing.V2Summary) dict {
	return dict{
		"meta version": int64(2),
		"name":         input.Name,
		"piece length": int64(input.PieceLength),
		// The empty key marks the file leaf node in the v2 file tree.
		"file tree": dict{
			input.Name: dict{
				"": dict{
					"length":      length,
					"pieces root": v2.PiecesRoot[:],
				},
			},
		},
		"piece layers": dict{
			string(v2.PiecesRoot[:]): v2.PieceLayers,
		},
	}
}

func rootDict(input *BuildInput, info dict) dict {
	tier := make([]interface{}, 0, len(input.Trackers))
	for _, tracker := range input.Trackers {
		tier = append(tier, tracker)
	}
	webseeds := make([]interface{}, 0, len(input.Webseeds))
	for _, webseed := range input.Webseeds {
		webseeds = append(webseeds, webseed)
	}
	return dict{
		"announce":      input.Trackers[0],
		"announce-list": []interface{}{tier},
		"created by":    input.CreatedBy,
		"creation date": input.CreationDate,
		"info":          info,
		"url-list":      webseeds,
	}
}

func encodeDict(d dict, which string) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(d); err != nil {
		return nil, fmt.Errorf("failed to bencode %s dictionary: %w", which, err)
	}
	return buf.Bytes(), nil
}

func int64From(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("value %d exceeds int64 range", value)
	}
	return int64(value), nil
}
