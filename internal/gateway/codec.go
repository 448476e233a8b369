package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"go.klb.dev/mclip/internal/clip"
)

var (
	errTruncated    = errors.New("truncated payload")
	errUnterminated = errors.New("payload has no terminator")
	errSurrogate    = errors.New("unpaired UTF-16 surrogate")
	errInvalidUTF8  = errors.New("invalid UTF-8")
	errEmbeddedNUL  = errors.New("text contains NUL")
	errTooLarge     = errors.New("text exceeds size limit")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// decode converts a native clipboard payload to a Go string. Malformed or
// truncated payloads are errors; nothing is replaced or cut short.
func decode(enc clip.Encoding, raw []byte, maxBytes int) (string, error) {
	var text string
	switch enc {
	case clip.UTF8:
		if !utf8.Valid(raw) {
			return "", errInvalidUTF8
		}
		text = string(raw)
	case clip.UTF16LE:
		units, err := terminated(raw)
		if err != nil {
			return "", err
		}
		if err := checkSurrogates(units); err != nil {
			return "", err
		}
		out, err := utf16le.NewDecoder().Bytes(units)
		if err != nil {
			return "", fmt.Errorf("utf-16 decode: %w", err)
		}
		text = string(out)
	default:
		return "", fmt.Errorf("unsupported encoding %s", enc)
	}
	if maxBytes > 0 && len(text) > maxBytes {
		return "", fmt.Errorf("%w (%d > %d bytes)", errTooLarge, len(text), maxBytes)
	}
	return text, nil
}

// encode converts text to the native payload for enc.
func encode(enc clip.Encoding, text string, maxBytes int) ([]byte, error) {
	if !utf8.ValidString(text) {
		return nil, errInvalidUTF8
	}
	if maxBytes > 0 && len(text) > maxBytes {
		return nil, fmt.Errorf("%w (%d > %d bytes)", errTooLarge, len(text), maxBytes)
	}
	switch enc {
	case clip.UTF8:
		return []byte(text), nil
	case clip.UTF16LE:
		// A NUL would end the native string early on read-back.
		if strings.IndexByte(text, 0) >= 0 {
			return nil, errEmbeddedNUL
		}
		out, err := utf16le.NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("utf-16 encode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %s", enc)
	}
}

// terminated returns the code units of raw up to the first NUL unit. Bytes
// past the terminator are allocation slack and ignored.
func terminated(raw []byte) ([]byte, error) {
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			return raw[:i], nil
		}
	}
	if len(raw)%2 != 0 {
		return nil, errTruncated
	}
	return nil, errUnterminated
}

func checkSurrogates(units []byte) error {
	for i := 0; i < len(units); i += 2 {
		r := rune(binary.LittleEndian.Uint16(units[i:]))
		if !utf16.IsSurrogate(r) {
			continue
		}
		if r >= 0xDC00 || i+3 >= len(units) {
			return errSurrogate
		}
		next := rune(binary.LittleEndian.Uint16(units[i+2:]))
		if next < 0xDC00 || next > 0xDFFF {
			return errSurrogate
		}
		i += 2
	}
	return nil
}
