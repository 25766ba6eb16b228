package kcb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"
)

// CanonicalJSON re-encodes payload the way KCB signs it: no insignificant
// whitespace, keys in received order, every rune outside printable ASCII
// escaped as \uXXXX, integers in plain form and floats in shortest
// round-trip form ("1.50" becomes "1.5", "1e-5" becomes "1e-05").
func CanonicalJSON(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var buf bytes.Buffer
	if err := writeCanonical(&buf, dec); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("kcb: trailing data after JSON payload")
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			buf.WriteByte('{')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					buf.WriteByte(',')
				}
				key, err := dec.Token()
				if err != nil {
					return err
				}
				name, ok := key.(string)
				if !ok {
					return fmt.Errorf("kcb: object key %v is not a string", key)
				}
				writeCanonicalString(buf, name)
				buf.WriteByte(':')
				if err := writeCanonical(buf, dec); err != nil {
					return err
				}
			}
			buf.WriteByte('}')
		case '[':
			buf.WriteByte('[')
			for i := 0; dec.More(); i++ {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := writeCanonical(buf, dec); err != nil {
					return err
				}
			}
			buf.WriteByte(']')
		default:
			return fmt.Errorf("kcb: unexpected %q", rune(v))
		}
		// closing delimiter
		_, err := dec.Token()
		return err
	case string:
		writeCanonicalString(buf, v)
	case json.Number:
		return writeCanonicalNumber(buf, v)
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case nil:
		buf.WriteString("null")
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"
	escape := func(r rune) {
		buf.WriteString(`\u`)
		for shift := 12; shift >= 0; shift -= 4 {
			buf.WriteByte(hex[(r>>shift)&0xf])
		}
	}

	buf.WriteByte('"')
	for _, r := range s {
		switch r {
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
			switch {
			case r >= 0x20 && r < 0x7f:
				buf.WriteRune(r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				escape(hi)
				escape(lo)
			default:
				escape(r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("kcb: invalid integer %q", s)
		}
		buf.WriteString(i.String())
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("kcb: invalid number %q: %w", s, err)
	}
	switch {
	case math.IsInf(f, 1):
		buf.WriteString("Infinity")
		return nil
	case math.IsInf(f, -1):
		buf.WriteString("-Infinity")
		return nil
	}

	// exponent form outside [1e-4, 1e16), as repr(float) does
	exp := strconv.FormatFloat(f, 'e', -1, 64)
	e, err := strconv.Atoi(exp[strings.IndexByte(exp, 'e')+1:])
	if err != nil {
		return fmt.Errorf("kcb: formatting %q: %w", s, err)
	}
	if e < -4 || e >= 16 {
		buf.WriteString(exp)
		return nil
	}
	fixed := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(fixed, ".") {
		fixed += ".0"
	}
	buf.WriteString(fixed)
	return nil
}
