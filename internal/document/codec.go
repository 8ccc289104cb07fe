package document

// codec.go — JSON decoding into ordered objects and the indented encoder
// used for every persisted document.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// MalformedError reports a document that could not be parsed.
type MalformedError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *MalformedError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("malformed document %s:%d:%d: %v", loc, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("malformed document %s: %v", loc, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Decode parses a JSON document. A leading byte-order mark is ignored.
// Objects decode to *Object, arrays to []any and numbers to json.Number.
func Decode(data []byte) (any, error) {
	v, err := decode(data)
	if err != nil {
		var me *MalformedError
		if errors.As(err, &me) {
			return nil, err
		}
		return nil, &MalformedError{Err: err}
	}
	return v, nil
}

// DecodeObject parses a document whose top level must be an object.
func DecodeObject(data []byte) (*Object, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, &MalformedError{Err: fmt.Errorf("top-level value is %s, want object", kindOf(v))}
	}
	return obj, nil
}

func decode(data []byte) (any, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, locate(data, dec, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, locate(data, dec, err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %v, want string", kt)
				}
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return t, nil
	}
}

// locate converts a decoder error into a MalformedError with a line and
// column computed from the byte offset.
func locate(data []byte, dec *json.Decoder, err error) error {
	offset := dec.InputOffset()
	var se *json.SyntaxError
	if errors.As(err, &se) {
		offset = se.Offset
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return &MalformedError{Line: line, Column: col, Err: err}
}

// Encode renders v as indented JSON (two spaces) with a trailing newline.
// Non-ASCII and HTML characters are written literally.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, "", true); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any, indent string, pretty bool) error {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			buf.WriteString("null")
			return nil
		}
		if t.Len() == 0 {
			buf.WriteString("{}")
			return nil
		}
		inner := indent + "  "
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if pretty {
				buf.WriteString("\n" + inner)
			}
			if err := writeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if pretty {
				buf.WriteByte(' ')
			}
			if err := writeValue(buf, t.vals[k], inner, pretty); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		if pretty {
			buf.WriteString("\n" + indent)
		}
		buf.WriteByte('}')
	case []any:
		if len(t) == 0 {
			buf.WriteString("[]")
			return nil
		}
		inner := indent + "  "
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if pretty {
				buf.WriteString("\n" + inner)
			}
			if err := writeValue(buf, e, inner, pretty); err != nil {
				return err
			}
		}
		if pretty {
			buf.WriteString("\n" + indent)
		}
		buf.WriteByte(']')
	case []*Object:
		arr := make([]any, len(t))
		for i, o := range t {
			arr[i] = o
		}
		return writeValue(buf, arr, indent, pretty)
	default:
		return writeScalar(buf, v)
	}
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	var sb bytes.Buffer
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.WriteString(strings.TrimSuffix(sb.String(), "\n"))
	return nil
}
