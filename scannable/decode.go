// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scannable

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decoded is the result of running the decode pipeline once over a raw
// byte slice. It is cached by the concrete Scannable implementations so
// repeated Content()/UTF8EncodedSize() calls are free.
type decoded struct {
	text            string
	utf8EncodedSize int
}

// quickRejectFactor is the worst case expansion ratio from raw bytes to
// UTF-8 text: no supported encoding can shrink content by more than 4x
// (the inverse of UTF-32's 4 bytes per code point), so if rawLen > 4*n the
// decoded content is guaranteed to be longer than n without decoding it.
const quickRejectFactor = 4

// isLongerThanRaw answers IsLongerThan from a raw byte count alone when
// possible. The second return value is false when a full decode is
// required to know for sure.
func isLongerThanRaw(rawLen, n int, likelyUTF8 bool) (longer bool, decided bool) {
	if rawLen > quickRejectFactor*n {
		return true, true
	}
	if likelyUTF8 {
		return rawLen > n, true
	}
	return false, false
}

// decode runs the full pipeline: BOM detection/stripping, UTF-8 validation,
// and, for BOM-marked UTF-16 content, decoding to UTF-8. Content that is
// neither valid UTF-8 nor BOM-marked UTF-16 and looks binary surfaces a
// typed DecodeError; otherwise invalid sequences are replaced (U+FFFD),
// preserving zero bytes verbatim.
func decode(url string, raw []byte) (decoded, error) {
	if bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		raw = raw[3:]
	}

	if enc, bomLen := detectBOM(raw); enc != nil {
		text, _, err := transform.Bytes(enc.NewDecoder(), raw[bomLen:])
		if err != nil {
			return decoded{}, &DecodeError{URL: url, Err: err}
		}
		return decoded{text: string(text), utf8EncodedSize: len(text)}, nil
	}

	if utf8.Valid(raw) {
		return decoded{text: string(raw), utf8EncodedSize: len(raw)}, nil
	}

	if looksBinary(raw) {
		return decoded{}, &DecodeError{URL: url, Err: fmt.Errorf("content is not valid UTF-8 and contains no BOM")}
	}

	// Best-effort: legacy 8-bit text with invalid sequences replaced, rather
	// than rejecting every non-UTF-8 file outright.
	text := bytes.ToValidUTF8(raw, []byte(string(utf8.RuneError)))
	return decoded{text: string(text), utf8EncodedSize: len(text)}, nil
}

// detectBOM reports the encoding implied by a leading byte-order-mark and
// how many bytes the mark itself occupies. A UTF-8 BOM reports nil, since
// the UTF-8 fast path already strips it as part of a plain byte slice.
func detectBOM(raw []byte) (enc encoding.Encoding, bomLen int) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), 2
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), 2
	default:
		return nil, 0
	}
}

// looksBinary is a cheap heuristic: a high proportion of non-printable
// bytes within the first 8000 marks content as binary rather than legacy
// text that decode() should still attempt to salvage. A stray NUL is not
// conclusive on its own; zero bytes are preserved through decoding.
func looksBinary(raw []byte) bool {
	probe := raw
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	nonPrintable := 0
	for _, b := range probe {
		if b < 0x09 || (b > 0x0D && b < 0x20) {
			nonPrintable++
		}
	}
	return len(probe) > 0 && nonPrintable*20 > len(probe)
}
