package document

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsKeyOrder(t *testing.T) {
	obj, err := DecodeObject([]byte(`{"zeta":1,"alpha":{"b":true,"a":null},"mid":[1,"x"]}`))
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, obj.Keys()); diff != "" {
		t.Errorf("top keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "a"}, obj.Object("alpha").Keys()); diff != "" {
		t.Errorf("nested keys (-want +got):\n%s", diff)
	}
	if n, ok := obj.Int("zeta"); !ok || n != 1 {
		t.Errorf("zeta = %d, %v; want 1, true", n, ok)
	}
	if got := len(obj.Array("mid")); got != 2 {
		t.Errorf("len(mid) = %d, want 2", got)
	}
}

func TestDecodeStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"id":"ch1"}`)...)
	obj, err := DecodeObject(data)
	require.NoError(t, err)
	if got := obj.String("id"); got != "ch1" {
		t.Errorf("id = %q, want ch1", got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		line int
	}{
		{"syntax on second line", "{\n  \"a\": ,\n}", 2},
		{"trailing data", `{"a":1} {"b":2}`, 1},
		{"truncated", `{"a":[1,2`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("err = %v, want *MalformedError", err)
			}
			if me.Line != tt.line {
				t.Errorf("line = %d, want %d", me.Line, tt.line)
			}
		})
	}
}

func TestDecodeObjectRejectsArray(t *testing.T) {
	_, err := DecodeObject([]byte(`[1,2]`))
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MalformedError", err)
	}
}

func TestEncodeFormatting(t *testing.T) {
	obj := ObjectOf(
		"titre", "Éléments <base> & co",
		"points", 10,
		"etapes", []any{},
		"meta", NewObject(),
		"list", []any{ObjectOf("id", "a")},
	)
	got, err := Encode(obj)
	require.NoError(t, err)

	want := `{
  "titre": "Éléments <base> & co",
  "points": 10,
  "etapes": [],
  "meta": {},
  "list": [
    {
      "id": "a"
    }
  ]
}
`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("Encode (-want +got):\n%s", diff)
	}
}

func TestEncodeRoundTripIsStable(t *testing.T) {
	in := "{\n  \"b\": 1.50,\n  \"a\": [\n    true,\n    null\n  ]\n}\n"
	v, err := Decode([]byte(in))
	require.NoError(t, err)
	out, err := Encode(v)
	require.NoError(t, err)
	if string(out) != in {
		t.Errorf("round trip changed the document:\n%s", out)
	}
}

func TestObjectInsertAndDelete(t *testing.T) {
	obj := ObjectOf("id", "x", "type", "video", "content", NewObject())
	obj.Insert(2, "url", "https://example.org")
	if diff := cmp.Diff([]string{"id", "type", "url", "content"}, obj.Keys()); diff != "" {
		t.Errorf("after insert (-want +got):\n%s", diff)
	}

	// Inserting an existing key moves it.
	obj.Insert(0, "content", NewObject())
	if diff := cmp.Diff([]string{"content", "id", "type", "url"}, obj.Keys()); diff != "" {
		t.Errorf("after move (-want +got):\n%s", diff)
	}

	if !obj.Delete("url") || obj.Delete("url") {
		t.Error("Delete should report presence exactly once")
	}

	// Set on an existing key keeps its position.
	obj.Set("id", "y")
	if obj.Keys()[1] != "id" || obj.String("id") != "y" {
		t.Errorf("Set moved or lost key: %v", obj.Keys())
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := ObjectOf("content", ObjectOf("url", "u"), "tags", []any{"a"})
	c := orig.Clone()
	c.Object("content").Set("url", "changed")
	c.Array("tags")[0] = "b"

	if orig.Object("content").String("url") != "u" {
		t.Error("clone shares nested object")
	}
	if orig.Array("tags")[0] != "a" {
		t.Error("clone shares nested array")
	}
}

func TestStoreWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	doc := ObjectOf("chapitres", []any{ObjectOf("id", "ch1")})
	require.NoError(t, s.Write("N1/chapitres.json", doc))

	got, err := s.ReadObject("N1/chapitres.json")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"chapitres"}, got.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "N1"))
	require.NoError(t, err)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestStoreMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.Read("absent.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing file err = %v, want fs.ErrNotExist", err)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{\"a\": }"), 0o644))
	_, err = s.Read("bad.json")
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MalformedError", err)
	}
	if me.Path != "bad.json" {
		t.Errorf("Path = %q, want bad.json", me.Path)
	}
}

func TestStoreTouch(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.Touch("N3/exercices/.gitkeep"))
	if !s.Exists("N3/exercices/.gitkeep") {
		t.Error(".gitkeep not created")
	}
	// Touch leaves existing files alone.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o644))
	require.NoError(t, s.Touch("keep"))
	data, _ := os.ReadFile(filepath.Join(dir, "keep"))
	if string(data) != "x" {
		t.Errorf("Touch overwrote existing file: %q", data)
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	for _, rel := range []string{"N1/exercices/b.json", "N1/exercices/a.json", "N1/exercices/.gitkeep", "N1/exercices/sub/c.json"} {
		require.NoError(t, s.Touch(rel))
	}
	got, err := s.List("N1/exercices", ".json")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"a.json", "b.json"}, got); diff != "" {
		t.Errorf("List (-want +got):\n%s", diff)
	}
	got, err = s.List("N2/exercices", ".json")
	require.NoError(t, err)
	if len(got) != 0 {
		t.Errorf("missing directory listed %v", got)
	}
}
