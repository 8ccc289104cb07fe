// Package frontmatter reads and writes markdown reports that carry a YAML
// header between --- delimiters.
package frontmatter

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Meta is the header of every generated report page.
type Meta struct {
	RunID        string   `yaml:"run_id"`
	GeneratedAt  string   `yaml:"generated_at"`
	CorpusSHA256 string   `yaml:"corpus_sha256"`
	Tags         []string `yaml:"tags,omitempty"`
}

// NewMeta returns a Meta stamped with t in RFC 3339 UTC.
func NewMeta(runID, corpusHash string, t time.Time) Meta {
	return Meta{RunID: runID, GeneratedAt: t.UTC().Format(time.RFC3339), CorpusSHA256: corpusHash}
}

// WithTags returns a copy of m carrying tags, sorted.
func (m Meta) WithTags(tags ...string) Meta {
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	m.Tags = sorted
	return m
}

// Split separates a markdown document into its raw YAML header and body.
// The document must begin with "---\n"; the next "---" line closes the
// header.
func Split(data []byte) (header []byte, body []byte, err error) {
	const delim = "---\n"
	if !bytes.HasPrefix(data, []byte(delim)) {
		return nil, nil, fmt.Errorf("frontmatter: missing opening --- delimiter")
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, nil, fmt.Errorf("frontmatter: missing closing --- delimiter")
	}
	header = rest[:idx]
	tail := rest[idx+4:]
	if len(tail) > 0 && tail[0] == '\n' {
		tail = tail[1:]
	}
	return header, tail, nil
}

// Parse decodes the header of a report page into Meta.
func Parse(data []byte) (Meta, []byte, error) {
	var m Meta
	header, body, err := Split(data)
	if err != nil {
		return m, nil, err
	}
	if err := yaml.Unmarshal(header, &m); err != nil {
		return m, nil, fmt.Errorf("frontmatter: unmarshal: %w", err)
	}
	return m, body, nil
}

// Write renders m as a YAML header followed by a blank line and body.
func Write(m Meta, body string) ([]byte, error) {
	fm, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
