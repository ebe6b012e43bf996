package main

import (
	"context"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"torseed/pkg/fetch"
	"torseed/pkg/hashing"
	"torseed/pkg/magnet"
	"torseed/pkg/metainfo"
	"torseed/pkg/trackers"
)

const version = "0.1.0"

const (
	progressInterval = 15 * time.Second
	readBufferSize   = 256 * 1024
)

func main() {
	initLogging()

	var output string
	root := &cobra.Command{
		Use:     "torseed URL [WEBSEED...]",
		Short:   "Create hybrid BitTorrent torrents from HTTP sources",
		Args:    cobra.MinimumNArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), args[0], args[1:], output)
		},
	}
	root.Flags().StringVarP(&output, "output", "o", "", "output path for the torrent file")
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func initLogging() {
	level := os.Getenv("TORSEED_LOG")
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func run(ctx context.Context, primary string, extras []string, output string) error {
	primaryURL, err := fetch.ParseSourceURL(primary)
	if err != nil {
		return err
	}
	extraURLs := make([]string, 0, len(extras))
	for _, extra := range extras {
		extraURL, err := fetch.ParseSourceURL(extra)
		if err != nil {
			return err
		}
		extraURLs = append(extraURLs, extraURL)
	}

	client := fetch.NewClient("torseed/" + version)
	logrus.WithField("url", primaryURL).Info("Primary URL")

	meta, err := fetch.Head(ctx, client, primaryURL)
	if err != nil {
		return fmt.Errorf("failed to fetch metadata for %s: %w", primaryURL, err)
	}

	webseeds := append([]string{meta.URL}, verifyWebseeds(ctx, client, meta.ContentLength, extraURLs)...)

	trackerList, err := trackers.Gather(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to gather tracker list: %w", err)
	}

	pieceLength := hashing.ChoosePieceLength(meta.ContentLength)
	logrus.WithFields(logrus.Fields{
		"piece_length": humanize.IBytes(uint64(pieceLength)),
		"pieces":       (meta.ContentLength + uint64(pieceLength) - 1) / uint64(pieceLength),
	}).Info("Chose v1 piece length")

	v1 := hashing.NewV1Hasher(pieceLength)
	v2, err := hashing.NewV2Hasher()
	if err != nil {
		return fmt.Errorf("failed to initialize v2 hasher: %w", err)
	}

	body, err := fetch.Stream(ctx, client, meta.URL)
	if err != nil {
		return fmt.Errorf("failed to stream data from %s: %w", meta.URL, err)
	}
	defer body.Close()

	total, v2Err, err := hashStream(body, meta.ContentLength, v1, v2)
	if err != nil {
		return fmt.Errorf("error while reading HTTP stream: %w", err)
	}
	if total != meta.ContentLength {
		logrus.WithFields(logrus.Fields{
			"expected": meta.ContentLength,
			"got":      total,
		}).Warn("Streamed size mismatch")
	}

	pieces := v1.Finalize()
	var summary *hashing.V2Summary
	if v2Err == nil {
		summary, v2Err = v2.Finalize(pieceLength)
	} else {
		v2.Close()
	}
	if v2Err != nil {
		logrus.WithError(v2Err).Warn("Falling back to v1-only torrent")
		summary = nil
	}

	input := &metainfo.BuildInput{
		Name:         fetch.SanitizeFilename(meta.Filename),
		Length:       meta.ContentLength,
		PieceLength:  uint32(pieceLength),
		Pieces:       pieces,
		Trackers:     trackerList,
		Webseeds:     webseeds,
		CreationDate: time.Now().Unix(),
		CreatedBy:    "torseed " + version,
		V2:           summary,
	}

	built, err := metainfo.Build(input)
	if err != nil {
		return err
	}

	outputPath := computeOutputPath(output, meta.Filename)
	if err := writeFile(outputPath, built.Torrent); err != nil {
		return err
	}

	magnets := magnet.Build(input.Name, trackerList, webseeds, built.InfohashV1, built.InfohashV2)
	magnetPath := magnetOutputPath(outputPath)
	if err := writeFile(magnetPath, []byte(strings.Join(magnets, "\n")+"\n")); err != nil {
		return err
	}

	printSummary(outputPath, magnetPath, input, built, magnets)
	return nil
}

// hashStream drives the single hashing pass: a reader goroutine pulls chunks
// off the network while the previous chunk is folded into both hashers. The
// chunks arrive at both hashers identical and in order. A v2 failure does not
// stop the pass; the v1 digests are still usable.
func hashStream(body io.Reader, expected uint64, v1 *hashing.V1Hasher, v2 *hashing.V2Hasher) (total uint64, v2Err error, readErr error) {
	chunks := make(chan []byte, 4)
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, readBufferSize)
			n, err := body.Read(buf)
			if n > 0 {
				chunks <- buf[:n]
			}
			if err != nil {
				if err != io.EOF {
					readErr = err
				}
				return
			}
		}
	}()

	lastLog := time.Now()
	for chunk := range chunks {
		total += uint64(len(chunk))
		v1.Update(chunk)
		if v2Err == nil {
			v2Err = v2.Update(chunk)
		}

		if time.Since(lastLog) > progressInterval && expected > 0 {
			logrus.WithFields(logrus.Fields{
				"done":    humanize.IBytes(total),
				"of":      humanize.IBytes(expected),
				"percent": fmt.Sprintf("%.1f", float64(total)/float64(expected)*100),
			}).Info("Hashing")
			lastLog = time.Now()
		}
	}
	return total, v2Err, readErr
}

// verifyWebseeds keeps the extra URLs whose reported length matches the
// primary source. Mismatches and unreachable seeds are skipped with a
// warning, never fatal.
func verifyWebseeds(ctx context.Context, client *http.Client, expected uint64, urls []string) []string {
	verified := make([]string, len(urls))
	var group errgroup.Group
	for i, rawURL := range urls {
		i, rawURL := i, rawURL
		group.Go(func() error {
			meta, err := fetch.Head(ctx, client, rawURL)
			if err != nil {
				logrus.WithField("url", rawURL).WithError(err).Warn("Skipping webseed")
				return nil
			}
			if meta.ContentLength != expected {
				logrus.WithFields(logrus.Fields{
					"url":      rawURL,
					"expected": expected,
					"got":      meta.ContentLength,
				}).Warn("Skipping webseed with mismatched length")
				return nil
			}
			verified[i] = rawURL
			return nil
		})
	}
	group.Wait()

	kept := make([]string, 0, len(urls))
	for _, rawURL := range verified {
		if rawURL != "" {
			kept = append(kept, rawURL)
		}
	}
	return kept
}

func computeOutputPath(flagValue, filename string) string {
	if flagValue != "" {
		return flagValue
	}
	return fetch.SanitizeFilename(filename) + ".torrent"
}

func magnetOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	return filepath.Join(dir, ".magnet")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create parent directories for %s: %w", path, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printSummary(outputPath, magnetPath string, input *metainfo.BuildInput, built *metainfo.Metainfo, magnets []string) {
	fmt.Printf("Torrent written to %s\n", outputPath)

	if built.InfohashV1 != nil {
		fmt.Printf("v1 infohash (hex): %s\n", hex.EncodeToString(built.InfohashV1[:]))
		fmt.Printf("v1 infohash (base32): %s\n", base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(built.InfohashV1[:]))
	}
	if built.InfohashV2 != nil {
		fmt.Printf("v2 infohash (sha256 hex): %s\n", hex.EncodeToString(built.InfohashV2[:]))
	}
	for _, link := range magnets {
		fmt.Printf("magnet: %s\n", link)
	}
	fmt.Printf("Magnet links written to %s\n", magnetPath)

	fmt.Printf("File size: %s (%d bytes)\n", humanize.IBytes(input.Length), input.Length)
	fmt.Printf("Piece length: %s\n", humanize.IBytes(uint64(input.PieceLength)))
	fmt.Printf("Pieces: %d\n", len(input.Pieces)/20)
	fmt.Printf("Trackers: %d\n", len(input.Trackers))
	fmt.Printf("Webseeds: %d\n", len(input.Webseeds))
}
