package frontmatter_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"douane/internal/frontmatter"
)

func TestWriteParse(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	m := frontmatter.NewMeta("run-1", "abc123", at).WithTags("douane/audit", "douane")
	body := "# Audit\n\nNo discrepancies.\n"

	data, err := frontmatter.Write(m, body)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\nrun_id: run-1\n") {
		t.Errorf("unexpected header:\n%s", data)
	}

	got, gotBody, err := frontmatter.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := frontmatter.Meta{
		RunID:        "run-1",
		GeneratedAt:  "2024-01-02T02:04:05Z",
		CorpusSHA256: "abc123",
		Tags:         []string{"douane", "douane/audit"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("meta (-want +got):\n%s", diff)
	}
	if string(gotBody) != "\n"+body {
		t.Errorf("body = %q", gotBody)
	}
}

func TestWithTagsDoesNotAlias(t *testing.T) {
	tags := []string{"b", "a"}
	m := frontmatter.Meta{}.WithTags(tags...)
	if tags[0] != "b" {
		t.Error("WithTags sorted the caller's slice")
	}
	if diff := cmp.Diff([]string{"a", "b"}, m.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestSplitMissingOpen(t *testing.T) {
	if _, _, err := frontmatter.Split([]byte("no delimiter")); err == nil {
		t.Fatal("expected error for missing opening delimiter")
	}
}

func TestSplitMissingClose(t *testing.T) {
	if _, _, err := frontmatter.Split([]byte("---\nrun_id: x\n")); err == nil {
		t.Fatal("expected error for missing closing delimiter")
	}
}

func TestParseBadYAML(t *testing.T) {
	if _, _, err := frontmatter.Parse([]byte("---\ntags: [\n---\n")); err == nil {
		t.Fatal("expected unmarshal error")
	}
}
