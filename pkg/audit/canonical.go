package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Canonicalize renders a trail as the one byte string every conforming
// implementation must produce for it, the input to regulator hashing.
//
// The grammar is fixed as the compliance baseline:
//
//   - One JSON object, entries sorted by key under ascending byte-wise
//     (UTF-8) comparison. For the ASCII identifiers engines use as keys
//     this coincides with RFC 8785 ordering.
//   - Each record is an object with fields in the fixed order max, min,
//     result, seed.
//   - Integers in exact base-10 form: no leading zeros, no plus sign, no
//     exponent, full int64 precision. This deliberately extends RFC 8785,
//     whose IEEE-754 number model would corrupt seeds above 2^53.
//   - Keys escaped minimally: backslash, quote, and control characters
//     only, with no HTML escaping.
//   - No whitespace, no locale influence, no addresses; the same logical
//     trail yields identical bytes on every platform and every run.
//
// Trails whose integers all lie within the IEEE-754 safe range serialize
// byte-identically to an independent RFC 8785 implementation applied to the
// trail's JSON form.
func Canonicalize(t Trail) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range t.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, key)
		rec := t[key]
		buf.WriteString(`:{"max":`)
		buf.WriteString(strconv.FormatInt(rec.Max, 10))
		buf.WriteString(`,"min":`)
		buf.WriteString(strconv.FormatInt(rec.Min, 10))
		buf.WriteString(`,"result":`)
		buf.WriteString(strconv.FormatInt(rec.Result, 10))
		buf.WriteString(`,"seed":`)
		buf.WriteString(strconv.FormatInt(rec.Seed, 10))
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// Hash returns the SHA-256 hex digest of the trail's canonical form. The
// digest algorithm is a default for convenience; an auditor hashing the
// canonical string with independent tooling starts from the same bytes.
func Hash(t Trail) (string, error) {
	canonical, err := Canonicalize(t)
	if err != nil {
		return "", err
	}
	return HashBytes([]byte(canonical)), nil
}

// HashBytes computes the SHA-256 hash of raw bytes as a lowercase hex
// string.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeJSONString escapes s per RFC 8785: shorthand escapes for the control
// characters that have them, \u00xx lowercase hex for the rest, and literal
// UTF-8 for everything else. HTML escaping stays off.
func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c >= 0x20:
			buf.WriteByte(c)
		case c == '\b':
			buf.WriteString(`\b`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\f':
			buf.WriteString(`\f`)
		case c == '\r':
			buf.WriteString(`\r`)
		default:
			fmt.Fprintf(buf, `\u%04x`, c)
		}
	}
	buf.WriteByte('"')
}
