package rcp

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	headerPrefix = `<xmlh><xml size="`
	headerSuffix = `/></xmlh>`

	// MaxSpeed is the largest speed value the protocol carries.
	MaxSpeed = 100
)

// Encode wraps payload in the standard envelope:
//
//	<xmlh><xml size="N"/></xmlh> + N bytes of payload
//
// N is the byte length of the payload. Both query and command messages use
// this framing.
func Encode(payload string) []byte {
	var b strings.Builder
	b.Grow(len(headerPrefix) + len(headerSuffix) + len(payload) + 8)
	b.WriteString(headerPrefix)
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteString(`"`)
	b.WriteString(headerSuffix)
	b.WriteString(payload)

	return []byte(b.String())
}

// EncodeNamed wraps payload in the alternate envelope form that carries a name
// attribute, used by the roster query:
//
//	<xmlh><xml size="N" name="NAME"/></xmlh> + N bytes of payload
func EncodeNamed(payload string, name string) []byte {
	var b strings.Builder
	b.Grow(len(headerPrefix) + len(headerSuffix) + len(payload) + len(name) + 16)
	b.WriteString(headerPrefix)
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteString(`" name="`)
	b.WriteString(name)
	b.WriteString(`"`)
	b.WriteString(headerSuffix)
	b.WriteString(payload)

	return []byte(b.String())
}

// Decode is the inverse of Encode and EncodeNamed. It validates the envelope
// header, reads the announced payload size and returns the payload.
//
// Trailing bytes beyond the announced size are ignored; callers that care
// about stream position should frame reads themselves.
func Decode(frame []byte) (string, error) {
	s := string(frame)
	if !strings.HasPrefix(s, headerPrefix) {
		return "", ErrInvalidHeader
	}

	rest := s[len(headerPrefix):]
	quote := strings.IndexByte(rest, '"')
	if quote < 0 {
		return "", ErrInvalidSize
	}

	size, err := strconv.Atoi(rest[:quote])
	if err != nil || size < 0 {
		return "", ErrInvalidSize
	}

	rest = rest[quote+1:]
	// optional name attribute between size and the closing tag
	if strings.HasPrefix(rest, ` name="`) {
		end := strings.IndexByte(rest[len(` name="`):], '"')
		if end < 0 {
			return "", ErrInvalidHeader
		}
		rest = rest[len(` name="`)+end+1:]
	}

	if !strings.HasPrefix(rest, headerSuffix) {
		return "", ErrInvalidHeader
	}

	payload := rest[len(headerSuffix):]
	if len(payload) < size {
		return "", ErrShortFrame
	}

	return payload[:size], nil
}

// SpeedCommand builds the speed/direction command payload for a locomotive:
//
//	<lc id="LOCO_ID" V="SPEED" dir="true|false"/>
//
// The speed is clamped to [0, MaxSpeed]. dir is the literal "true" for
// forward and "false" for reverse.
func SpeedCommand(locoID string, speed int, forward bool) string {
	if speed < 0 {
		speed = 0
	} else if speed > MaxSpeed {
		speed = MaxSpeed
	}

	return fmt.Sprintf(`<lc id="%s" V="%d" dir="%s"/>`, locoID, speed, boolAttr(forward))
}

// FunctionCommand builds the light (F0) command payload for a locomotive:
//
//	<fn id="LOCO_ID" f0="true|false" fnchanged="0"/>
func FunctionCommand(locoID string, on bool) string {
	return fmt.Sprintf(`<fn id="%s" f0="%s" fnchanged="0"/>`, locoID, boolAttr(on))
}

// RosterQuery builds the complete, framed roster-list request. The query uses
// the alternate envelope form with name="model".
func RosterQuery() []byte {
	return EncodeNamed(`<model cmd="lclist"/>`, "model")
}

func boolAttr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
