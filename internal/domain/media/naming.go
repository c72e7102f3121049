package media

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	unsafeRe     = regexp.MustCompile(`[^a-z0-9-]`)
	dashRunRe    = regexp.MustCompile(`-{2,}`)
)

// NamingPolicy derives collision-resistant storage keys from client-supplied
// filenames. Clock and random source are injectable so the output can be
// asserted in tests.
type NamingPolicy struct {
	now  func() time.Time
	rand io.Reader
}

func NewNamingPolicy() *NamingPolicy {
	return &NamingPolicy{now: time.Now, rand: rand.Reader}
}

// NewNamingPolicyWith builds a policy with a fixed clock and random source.
func NewNamingPolicyWith(now func() time.Time, random io.Reader) *NamingPolicy {
	return &NamingPolicy{now: now, rand: random}
}

// MakeFileName turns an arbitrary client filename into a canonical key:
// lowercased, whitespace and punctuation squashed to dashes, suffixed with
// a timestamp and 8 random hex characters, original extension preserved.
func (p *NamingPolicy) MakeFileName(original string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(original), "."))
	if ext == "" {
		ext = "bin"
	}

	stem := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	stem = strings.ToLower(stem)
	stem = whitespaceRe.ReplaceAllString(stem, "-")
	stem = unsafeRe.ReplaceAllString(stem, "-")
	stem = dashRunRe.ReplaceAllString(stem, "-")
	stem = strings.Trim(stem, "-")
	if stem == "" {
		stem = "file"
	}

	return stem + "-" + p.now().Format("20060102150405") + "-" + p.randomHex(4) + "." + ext
}

func (p *NamingPolicy) randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.rand, buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to zeros
		// rather than panicking in a request path.
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(buf)
}
