// internal/models/hotspot.go
package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// Hotspot is a ranked trending-topic record as read from the table store.
type Hotspot struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	HotValue    float64   `json:"hotValue"`
	Rank        int       `json:"rank"`
	Category    string    `json:"category,omitempty"`
	PublishTime time.Time `json:"publishTime"`
	CollectTime time.Time `json:"collectTime"`
}

const idSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var hotspotIDPattern = regexp.MustCompile(`^([a-z0-9][a-z0-9_-]*?)_(\d{10,13})([a-z0-9]{4,})_(\d{8})_(\d{6})$`)

// NewHotspotID builds an id of the form <source>_<timestamp><random-suffix>_<date>_<time>.
func NewHotspotID(source string, at time.Time) string {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		source = "unknown"
	}
	suffix := make([]byte, 6)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idSuffixAlphabet))))
		if err != nil {
			suffix[i] = idSuffixAlphabet[i%len(idSuffixAlphabet)]
			continue
		}
		suffix[i] = idSuffixAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s_%d%s_%s_%s",
		source, at.Unix(), suffix, at.Format("20060102"), at.Format("150405"))
}

// HotspotIDParts holds the decoded segments of a hotspot id.
type HotspotIDParts struct {
	Source    string
	Timestamp string
	Suffix    string
	Date      string
	Time      string
}

// ParseHotspotID validates the id format and returns its parts.
func ParseHotspotID(id string) (*HotspotIDParts, error) {
	m := hotspotIDPattern.FindStringSubmatch(id)
	if m == nil {
		return nil, fmt.Errorf("hotspot id %q does not match <source>_<timestamp><suffix>_<date>_<time>", id)
	}
	return &HotspotIDParts{
		Source:    m[1],
		Timestamp: m[2],
		Suffix:    m[3],
		Date:      m[4],
		Time:      m[5],
	}, nil
}
