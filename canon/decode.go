package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"reflect"
	"strings"
	"unicode/utf8"
)

// FromAny converts untyped Go data into a Value.
//
// Accepted: nil, Value, string, bool, every signed and unsigned integer type,
// *big.Int, json.Number holding an integer, slices and arrays of accepted
// values, and maps keyed by strings. Nil pointers, slices and maps of any
// element type are null. Floats are rejected at any depth, as is anything
// else (structs, []byte, channels, funcs).
func FromAny(v any) (Value, error) {
	return fromAny(v, "$")
}

func fromAny(v any, path string) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null, nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case *big.Int:
		if t == nil {
			return Null, nil
		}
		return BigInt(t), nil
	case float32, float64:
		return nil, unsupported(RuleFloat, path, "floating point values are not allowed")
	case json.Number:
		return parseNumber(string(t), path)
	case []byte:
		return nil, unsupported(RuleType, path, "byte slices have no canonical form; encode them as a string")
	case []any:
		if t == nil {
			return Null, nil
		}
		out := make(Seq, len(t))
		for i, elem := range t {
			c, err := fromAny(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		if t == nil {
			return Null, nil
		}
		out := make(Map, len(t))
		for k, elem := range t {
			c, err := fromAny(elem, memberPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	}
	return fromReflect(reflect.ValueOf(v), path)
}

func fromReflect(rv reflect.Value, path string) (Value, error) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return nil, unsupported(RuleFloat, path, "floating point values are not allowed")
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Uint(rv.Uint()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null, nil
		}
		return fromAny(rv.Elem().Interface(), path)
	case reflect.Slice:
		if rv.IsNil() {
			return Null, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, unsupported(RuleType, path, "byte slices have no canonical form; encode them as a string")
		}
		fallthrough
	case reflect.Array:
		out := make(Seq, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			c, err := fromAny(rv.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, unsupported(RuleKeyType, path, fmt.Sprintf("map key type %s is not a string", rv.Type().Key()))
		}
		if rv.IsNil() {
			return Null, nil
		}
		out := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			c, err := fromAny(iter.Value().Interface(), memberPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	}
	if !rv.IsValid() {
		return Null, nil
	}
	return nil, unsupported(RuleType, path, fmt.Sprintf("unsupported value type %s", rv.Type()))
}

// ParseJSON decodes a single JSON document into a Value.
//
// Numbers with a fraction or an exponent are rejected as floats, duplicate
// member names are rejected, and anything after the document other than
// whitespace is rejected. Input that is not valid UTF-8, and \u escapes
// naming a lone UTF-16 surrogate, are rejected instead of being replaced with
// U+FFFD.
func ParseJSON(data []byte) (Value, error) {
	if !utf8.Valid(data) {
		return nil, unsupported(RuleUTF8, "$", "input is not valid UTF-8")
	}
	if err := checkSurrogateEscapes(data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec, "$")
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, syntaxError(RuleTrailingData, "unexpected data after the JSON document", err)
	}
	return v, nil
}

// checkSurrogateEscapes rejects \uD800-\uDFFF escapes that are not a high
// surrogate immediately followed by a low one. Malformed escapes are left to
// the decoder.
func checkSurrogateEscapes(data []byte) error {
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if !inString {
			inString = c == '"'
			continue
		}
		switch c {
		case '"':
			inString = false
		case '\\':
			if i+1 >= len(data) || data[i+1] != 'u' {
				i++
				continue
			}
			r, ok := hex4(data, i+2)
			if !ok {
				return nil
			}
			switch {
			case r >= 0xD800 && r <= 0xDBFF:
				lo, ok := rune(0), false
				if i+7 < len(data) && data[i+6] == '\\' && data[i+7] == 'u' {
					lo, ok = hex4(data, i+8)
				}
				if !ok || lo < 0xDC00 || lo > 0xDFFF {
					return unsupported(RuleUTF8, "$", fmt.Sprintf("unpaired surrogate escape \\u%04x", r))
				}
				i += 11
			case r >= 0xDC00 && r <= 0xDFFF:
				return unsupported(RuleUTF8, "$", fmt.Sprintf("unpaired surrogate escape \\u%04x", r))
			default:
				i += 5
			}
		}
	}
	return nil
}

func hex4(data []byte, at int) (rune, bool) {
	if at+4 > len(data) {
		return 0, false
	}
	var r rune
	for _, c := range data[at : at+4] {
		switch {
		case '0' <= c && c <= '9':
			r = r<<4 | rune(c-'0')
		case 'a' <= c && c <= 'f':
			r = r<<4 | rune(c-'a'+10)
		case 'A' <= c && c <= 'F':
			r = r<<4 | rune(c-'A'+10)
		default:
			return 0, false
		}
	}
	return r, true
}

func parseValue(dec *json.Decoder, path string) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, syntaxError(RuleMalformed, "invalid JSON: "+err.Error(), err)
	}

	switch t := tok.(type) {
	case nil:
		return Null, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return parseNumber(string(t), path)
	case json.Delim:
		switch t {
		case '[':
			out := Seq{}
			for i := 0; dec.More(); i++ {
				elem, err := parseValue(dec, fmt.Sprintf("%s[%d]", path, i))
				if err != nil {
					return nil, err
				}
				out = append(out, elem)
			}
			if err := closing(dec); err != nil {
				return nil, err
			}
			return out, nil
		case '{':
			out := Map{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, syntaxError(RuleMalformed, "invalid JSON: "+err.Error(), err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, syntaxError(RuleMalformed, fmt.Sprintf("invalid JSON: member name %v is not a string", keyTok), nil)
				}
				if _, dup := out[key]; dup {
					return nil, unsupported(RuleDuplicateKey, memberPath(path, key), "duplicate member name")
				}
				elem, err := parseValue(dec, memberPath(path, key))
				if err != nil {
					return nil, err
				}
				out[key] = elem
			}
			if err := closing(dec); err != nil {
				return nil, err
			}
			return out, nil
		}
	}
	return nil, syntaxError(RuleMalformed, fmt.Sprintf("invalid JSON: unexpected token %v", tok), nil)
}

func closing(dec *json.Decoder) error {
	if _, err := dec.Token(); err != nil {
		return syntaxError(RuleMalformed, "invalid JSON: "+err.Error(), err)
	}
	return nil
}

func parseNumber(s, path string) (Value, error) {
	if strings.ContainsAny(s, ".eE") {
		return nil, unsupported(RuleFloat, path, "floating point values are not allowed: "+s)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, unsupported(RuleType, path, "not an integer: "+s)
	}
	return Integer{n: n}, nil
}

// CanonicalizeAny is FromAny followed by Canonicalize.
func CanonicalizeAny(v any) ([]byte, error) {
	c, err := FromAny(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(c)
}

// CanonicalizeJSON is ParseJSON followed by Canonicalize.
func CanonicalizeJSON(data []byte) ([]byte, error) {
	c, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	return Canonicalize(c)
}
