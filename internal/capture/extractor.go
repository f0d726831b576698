// Package capture reads a browser network capture (HAR) and pulls out the
// account identifiers and the authorization credential it recorded.
package capture

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"

	"mutuals/pkg/domain"
	dErrors "mutuals/pkg/domain-errors"
)

var (
	// Plain avatar: https://cdn.discordapp.com/avatars/<user>/<hash>
	avatarPattern = regexp.MustCompile(`^https://cdn\.discordapp\.com/avatars/(\d+)`)
	// Per-group avatar: https://cdn.discordapp.com/guilds/<group>/users/<user>/avatars/<hash>
	groupAvatarPattern = regexp.MustCompile(`^https://cdn\.discordapp\.com/guilds/\d+/users/(\d+)/avatars`)
)

const authorizationHeader = "Authorization"

// Result is what a capture yields: the ids to poll and the credential to poll them with.
type Result struct {
	Identifiers []domain.UserID
	Credential  string
	// Entries is the number of request entries scanned.
	Entries int
}

// CredentialFingerprint is a short, non-reversible tag for the credential so
// logs can tell captures apart without exposing the token.
func (r *Result) CredentialFingerprint() string {
	if r.Credential == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(r.Credential))
	return hex.EncodeToString(sum[:6])
}

// Extractor matches request URLs against a fixed set of patterns.
type Extractor struct {
	patterns []*regexp.Regexp
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPatterns replaces the URL patterns. Each must have one capture group
// holding the identifier.
func WithPatterns(patterns ...*regexp.Regexp) Option {
	return func(e *Extractor) {
		e.patterns = patterns
	}
}

func New(opts ...Option) *Extractor {
	e := &Extractor{patterns: []*regexp.Regexp{avatarPattern, groupAvatarPattern}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadFile reads and extracts the capture at path.
func (e *Extractor) LoadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "open capture log")
	}
	defer f.Close()
	return e.Extract(f)
}

// Extract parses a HAR document. It fails with CodeLogParse when the input is
// not a HAR log and with CodeCredentialNotFound when no request carried an
// Authorization header. Identifiers come back deduplicated in numeric order.
func (e *Extractor) Extract(r io.Reader) (*Result, error) {
	var doc harDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeLogParse, "decode capture log")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, dErrors.New(dErrors.CodeLogParse, "capture log has trailing data")
	}
	if doc.Log == nil {
		return nil, dErrors.New(dErrors.CodeLogParse, "capture log has no log section")
	}

	credential, ok := findCredential(doc.Log.Entries)
	if !ok {
		return nil, dErrors.New(dErrors.CodeCredentialNotFound, "no request carries an Authorization header")
	}

	var ids []domain.UserID
	for _, entry := range doc.Log.Entries {
		if id, ok := e.match(entry.Request.URL); ok {
			ids = append(ids, id)
		}
	}

	return &Result{
		Identifiers: domain.SortedUnique(ids),
		Credential:  credential,
		Entries:     len(doc.Log.Entries),
	}, nil
}

func (e *Extractor) match(url string) (domain.UserID, bool) {
	for _, p := range e.patterns {
		m := p.FindStringSubmatch(url)
		if len(m) < 2 {
			continue
		}
		id, err := domain.ParseUserID(m[1])
		if err != nil {
			continue
		}
		return id, true
	}
	return "", false
}

func findCredential(entries []harEntry) (string, bool) {
	for _, entry := range entries {
		for _, h := range entry.Request.Headers {
			if strings.EqualFold(h.Name, authorizationHeader) && h.Value != "" {
				return h.Value, true
			}
		}
	}
	return "", false
}
