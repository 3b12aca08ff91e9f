package canon

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Canonicalize returns the canonical bytes of v.
//
// Mapping members are emitted in ascending byte order of their UTF-8 keys,
// sequences keep their order, no whitespace is emitted, and strings are
// written as UTF-8 with only the escapes JSON requires. Two payloads with
// the same members always produce identical bytes.
//
// Canonicalize is pure and safe for concurrent use.
func Canonicalize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, "$"); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value, path string) error {
	switch t := v.(type) {
	case nil:
		return unsupported(RuleNil, path, "nil value (use canon.Null)")
	case NullValue:
		buf.WriteString("null")
	case Bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Integer:
		buf.WriteString(t.String())
	case String:
		return encodeString(buf, string(t), path)
	case Seq:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Map:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		// Go string comparison is byte-wise, which is the required order.
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k, path); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, t[k], memberPath(path, k)); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return unsupported(RuleType, path, fmt.Sprintf("unsupported value type %T", v))
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s, path string) error {
	if !utf8.ValidString(s) {
		return unsupported(RuleUTF8, path, "string is not valid UTF-8")
	}
	buf.WriteByte('"')
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		buf.WriteString(s[start:i])
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xf])
		}
		start = i + 1
	}
	buf.WriteString(s[start:])
	buf.WriteByte('"')
	return nil
}

func memberPath(parent, key string) string {
	return parent + "." + key
}
