package object

import (
	"fmt"
	"strconv"
	"strings"
)

// item is one node of a parsed description string.
type item struct {
	kind   byte   // 'i', 'u', 'b', 's', 'A' (array) or '(' (struct)
	elem   *item  // set when kind == 'A'
	fields []item // set when kind == '('
}

// parseDescr parses a description string into a sequence of top-level
// items, per the grammar documented in the package comment.
func parseDescr(descr string) ([]item, error) {
	items, rest, err := parseItems(descr, false)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: trailing input %q", ErrDescr, rest)
	}
	return items, nil
}

// parseItems consumes items from s until it is exhausted or, when inGroup
// is true, a closing ')' is found. It returns the parsed items and
// whatever of s was not consumed (the ")" itself, if any, is consumed).
func parseItems(s string, inGroup bool) ([]item, string, error) {
	var out []item
	for {
		if s == "" {
			if inGroup {
				return nil, "", fmt.Errorf("%w: unterminated group", ErrDescr)
			}
			return out, "", nil
		}
		if s[0] == ')' {
			if !inGroup {
				return nil, "", fmt.Errorf("%w: unmatched ')'", ErrDescr)
			}
			return out, s[1:], nil
		}
		it, rest, err := parseOne(s)
		if err != nil {
			return nil, "", err
		}
		out = append(out, it)
		s = rest
	}
}

func parseOne(s string) (item, string, error) {
	switch s[0] {
	case 'i', 'u', 'b', 's':
		return item{kind: s[0]}, s[1:], nil
	case 'A':
		if len(s) == 1 {
			return item{}, "", fmt.Errorf("%w: array without element type", ErrDescr)
		}
		elem, rest, err := parseOne(s[1:])
		if err != nil {
			return item{}, "", fmt.Errorf("%w: array without element type", ErrDescr)
		}
		return item{kind: 'A', elem: &elem}, rest, nil
	case '(':
		fields, rest, err := parseItems(s[1:], true)
		if err != nil {
			return item{}, "", err
		}
		if len(fields) == 0 {
			return item{}, "", fmt.Errorf("%w: empty group", ErrDescr)
		}
		return item{kind: '(', fields: fields}, rest, nil
	default:
		return item{}, "", fmt.Errorf("%w: unexpected byte %q", ErrDescr, s[0])
	}
}

// DescrValid reports whether descr satisfies the object grammar.
func DescrValid(descr string) bool {
	_, err := parseDescr(descr)
	return err == nil
}

// Build constructs a new Object whose contents are the values encoded per
// descr. values must supply exactly as many elements as descr's top-level
// items require; nested struct and array fields are each supplied as an
// []any holding the struct's fields or the array's elements (see buildItem).
func Build(descr string, values []any) (*Object, error) {
	items, err := parseDescr(descr)
	if err != nil {
		return nil, err
	}
	if len(items) != len(values) {
		return nil, fmt.Errorf("%w: descr wants %d values, got %d", ErrFormat, len(items), len(values))
	}
	o := New()
	for i, it := range items {
		if err := buildItem(o, it, values[i]); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func buildItem(o *Object, it item, v any) error {
	switch it.kind {
	case 'i':
		n, ok := toInt32(v)
		if !ok {
			return fmt.Errorf("%w: expected int32-like value, got %T", ErrFormat, v)
		}
		return o.InsInt32(n)
	case 'u':
		n, ok := toUint32(v)
		if !ok {
			return fmt.Errorf("%w: expected uint32-like value, got %T", ErrFormat, v)
		}
		return o.InsUint32(n)
	case 'b':
		n, ok := toByte(v)
		if !ok {
			return fmt.Errorf("%w: expected byte-like value, got %T", ErrFormat, v)
		}
		return o.InsByte(n)
	case 's':
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: expected string, got %T", ErrFormat, v)
		}
		return o.InsString(s)
	case 'A':
		elems, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: expected []any for array, got %T", ErrFormat, v)
		}
		if err := o.InsArray(uint32(len(elems))); err != nil {
			return err
		}
		for _, e := range elems {
			if err := buildItem(o, *it.elem, e); err != nil {
				return err
			}
		}
		return nil
	case '(':
		fs, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: expected []any for struct, got %T", ErrFormat, v)
		}
		if len(fs) != len(it.fields) {
			return fmt.Errorf("%w: struct wants %d fields, got %d", ErrFormat, len(it.fields), len(fs))
		}
		for i, f := range it.fields {
			if err := buildItem(o, f, fs[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown item kind %q", ErrDescr, it.kind)
	}
}

// Parse decodes o's contents according to descr, rewinding o first. The
// result mirrors Build's input shape: one value per top-level item, with
// nested []any for arrays and structs.
func Parse(o *Object, descr string) ([]any, error) {
	items, err := parseDescr(descr)
	if err != nil {
		return nil, err
	}
	o.Rewind()
	out := make([]any, 0, len(items))
	for _, it := range items {
		v, err := parseItem(o, it)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseItem(o *Object, it item) (any, error) {
	switch it.kind {
	case 'i':
		return o.ExtrInt32()
	case 'u':
		return o.ExtrUint32()
	case 'b':
		return o.ExtrByte()
	case 's':
		return o.ExtrString()
	case 'A':
		n, err := o.ExtrArray()
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := parseItem(o, *it.elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case '(':
		out := make([]any, 0, len(it.fields))
		for _, f := range it.fields {
			v, err := parseItem(o, f)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", ErrDescr, it.kind)
	}
}

// Repr renders o's contents per descr as a human-readable string such as
// `(1, "hello", [0x01, 0x02])`. It leaves o's cursor rewound on return.
func Repr(o *Object, descr string) (string, error) {
	items, err := parseDescr(descr)
	if err != nil {
		return "", err
	}
	o.Rewind()
	defer o.Rewind()
	parts := make([]string, 0, len(items))
	for _, it := range items {
		s, err := reprItem(o, it)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, ", ") + ")", nil
}

func reprItem(o *Object, it item) (string, error) {
	switch it.kind {
	case 'i':
		v, err := o.ExtrInt32()
		return strconv.FormatInt(int64(v), 10), err
	case 'u':
		v, err := o.ExtrUint32()
		return strconv.FormatUint(uint64(v), 10), err
	case 'b':
		v, err := o.ExtrByte()
		return fmt.Sprintf("0x%02x", v), err
	case 's':
		v, err := o.ExtrString()
		return strconv.Quote(v), err
	case 'A':
		n, err := o.ExtrArray()
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, n)
		for i := uint32(0); i < n; i++ {
			s, err := reprItem(o, *it.elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case '(':
		parts := make([]string, 0, len(it.fields))
		for _, f := range it.fields {
			s, err := reprItem(o, f)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", fmt.Errorf("%w: unknown item kind %q", ErrDescr, it.kind)
	}
}

func toInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		return int32(n), true
	}
	return 0, false
}

func toUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case uint:
		return uint32(n), true
	case int:
		return uint32(n), true
	}
	return 0, false
}

func toByte(v any) (byte, bool) {
	switch n := v.(type) {
	case byte:
		return n, true
	case int:
		return byte(n), true
	}
	return 0, false
}
