package trackers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	maxTrackers   = 1000
	sourceTimeout = 8 * time.Second
)

// Public tracker list endpoints, queried in parallel. Sources that respond
// faster get their trackers appended first.
var trackerSources = []string{
	"https://raw.githubusercontent.com/ngosang/trackerslist/master/trackers_best.txt",
	"https://raw.githubusercontent.com/ngosang/trackerslist/master/trackers_all.txt",
	"https://raw.githubusercontent.com/XIU2/TrackersListCollection/master/best.txt",
	"https://raw.githubusercontent.com/XIU2/TrackersListCollection/master/all.txt",
	"https://trackerslist.com/all.txt",
	"https://newtrackon.com/api/stable",
}

// Baked-in fallback so a torrent can always be produced even with every list
// source unreachable.
const fallbackTrackers = `udp://tracker.opentrackr.org:1337/announce
udp://open.stealth.si:80/announce
udp://tracker.torrent.eu.org:451/announce
udp://tracker.nanoha.org:6969/announce
udp://tracker.moeking.me:6969/announce
udp://tracker.skynetcloud.site:6969/announce
udp://explodie.org:6969/announce
udp://tracker1.bt.moack.co.kr:80/announce
udp://tracker.bitsearch.to:1337/announce
udp://tracker2.dler.org:80/announce
udp://exodus.desync.com:6969/announce
udp://tracker.open-internet.nl:6969/announce
udp://tracker.filemail.com:6969/announce
udp://open.demonii.com:1337/announce
udp://tracker3.itzmx.com:6961/announce
udp://public.tracker.vraphim.com:6969/announce
udp://tracker4.itzmx.com:2710/announce
udp://tracker.theoks.net:6969/announce
udp://tracker.cyberia.is:6969/announce
udp://tracker-udp.gbitt.info:80/announce
udp://tracker.truenethosting.com:6969/announce
udp://tracker.dler.com:6969/announce
udp://tracker.internetwarriors.net:1337/announce
udp://tracker.skyts.net:6969/announce
udp://opentracker.i2p.rocks:6969/announce
udp://bt1.archive.org:6969/announce
udp://bt2.archive.org:6969/announce
http://tracker.opentrackr.org:1337/announce
http://tracker.files.fm:6969/announce
http://tracker.tiny-vps.com:6969/announce
http://tracker3.itzmx.com:6961/announce
http://tracker.torrent.eu.org:451/announce
http://retracker.sevstar.net:2710/announce
https://tracker.opentrackr.org:443/announce
https://tracker.gbitt.info:443/announce
https://tr.ready4.icu:443/announce
https://tracker.tamersunion.org:443/announce
https://tracker.imgoingto.icu:443/announce
https://tracker.renfei.net:443/announce
`

// Gather returns up to maxTrackers announce URLs: the embedded fallback list
// first, then whatever the public sources contribute, normalized and
// deduplicated. The returned list is never empty without an error.
func Gather(ctx context.Context, client *http.Client) ([]string, error) {
	fallback := parseTrackerBlock(fallbackTrackers)
	if len(fallback) == 0 {
		return nil, errors.New("fallback tracker list is empty")
	}

	aggregated := make([]string, 0, maxTrackers)
	seen := make(map[string]bool)
	for _, tracker := range fallback {
		if !seen[tracker] {
			seen[tracker] = true
			aggregated = append(aggregated, tracker)
			if len(aggregated) >= maxTrackers {
				return aggregated, nil
			}
		}
	}

	type sourceResult struct {
		elapsed  time.Duration
		trackers []string
		source   string
	}

	results := make([]*sourceResult, len(trackerSources))
	var group errgroup.Group
	for i, source := range trackerSources {
		i, source := i, source
		group.Go(func() error {
			start := time.Now()
			trackers, err := fetchSource(ctx, client, source)
			if err != nil {
				logrus.WithField("source", source).WithError(err).Warn("Tracker source failed")
				return nil
			}
			results[i] = &sourceResult{
				elapsed:  time.Since(start),
				trackers: trackers,
				source:   source,
			}
			return nil
		})
	}
	group.Wait()

	responded := make([]*sourceResult, 0, len(results))
	for _, result := range results {
		if result != nil {
			responded = append(responded, result)
		}
	}
	sort.Slice(responded, func(i, j int) bool { return responded[i].elapsed < responded[j].elapsed })

	for _, result := range responded {
		logrus.WithFields(logrus.Fields{
			"source":     result.source,
			"elapsed":    result.elapsed,
			"discovered": len(result.trackers),
		}).Debug("Tracker source responded")

		rand.Shuffle(len(result.trackers), func(i, j int) {
			result.trackers[i], result.trackers[j] = result.trackers[j], result.trackers[i]
		})
		for _, tracker := range result.trackers {
			if !seen[tracker] {
				seen[tracker] = true
				aggregated = append(aggregated, tracker)
				if len(aggregated) >= maxTrackers {
					break
				}
			}
		}
		if len(aggregated) >= maxTrackers {
			break
		}
	}

	logrus.WithField("count", len(aggregated)).Info("Gathered trackers")
	return aggregated, nil
}

func fetchSource(ctx context.Context, client *http.Client, source string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return parseTrackerBlock(string(body)), nil
}

func parseTrackerBlock(block string) []string {
	var trackers []string
	for _, line := range strings.Split(block, "\n") {
		if tracker, ok := normalizeTracker(line); ok {
			trackers = append(trackers, tracker)
		}
	}
	return trackers
}

// normalizeTracker canonicalizes one announce URL: lowercased scheme and
// host, default http/https ports stripped, a bare trailing slash removed.
// Lines that are empty, comments or carry an unsupported scheme are dropped.
func normalizeTracker(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	switch parsed.Scheme {
	case "udp", "http", "https", "ws", "wss":
	default:
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}
	parsed.Host = strings.ToLower(parsed.Host)

	if (parsed.Scheme == "http" && parsed.Port() == "80") ||
		(parsed.Scheme == "https" && parsed.Port() == "443") {
		parsed.Host = bracketedHostname(parsed)
	}

	if (parsed.Scheme == "http" || parsed.Scheme == "https") &&
		parsed.Path == "/" && parsed.RawQuery == "" && parsed.Fragment == "" {
		parsed.Path = ""
	}

	return parsed.String(), true
}

// bracketedHostname is Hostname() with IPv6 brackets restored.
func bracketedHostname(u *url.URL) string {
	host := u.Hostname()
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}
