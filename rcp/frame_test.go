package rcp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	require := require.New(t)

	payload := `<lc id="BR103" V="50" dir="true"/>`
	frame := Encode(payload)

	expected := fmt.Sprintf(`<xmlh><xml size="%d"/></xmlh>%s`, len(payload), payload)
	require.Equal(expected, string(frame))
}

func TestEncodeNamed(t *testing.T) {
	require := require.New(t)

	frame := RosterQuery()
	payload := `<model cmd="lclist"/>`
	expected := fmt.Sprintf(`<xmlh><xml size="%d" name="model"/></xmlh>%s`, len(payload), payload)
	require.Equal(expected, string(frame))
}

func TestDecodeRoundTrip(t *testing.T) {
	require := require.New(t)

	payloads := []string{
		"",
		`<lc id="BR103" V="50" dir="true"/>`,
		`<lc id="BR103" V="0" dir="false"/>`,
		`<fn id="BR103" f0="true" fnchanged="0"/>`,
		`<model cmd="lclist"/>`,
		"plain text payload with spaces",
	}

	for _, payload := range payloads {
		decoded, err := Decode(Encode(payload))
		require.NoError(err, "payload %q", payload)
		require.Equal(payload, decoded)

		decoded, err = Decode(EncodeNamed(payload, "model"))
		require.NoError(err, "named payload %q", payload)
		require.Equal(payload, decoded)
	}
}

func TestDecodeErrors(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		name  string
		frame string
		err   error
	}{
		{"empty", "", ErrInvalidHeader},
		{"garbage", "not a frame at all", ErrInvalidHeader},
		{"missing size quote", `<xmlh><xml size="12`, ErrInvalidSize},
		{"non-numeric size", `<xmlh><xml size="abc"/></xmlh>x`, ErrInvalidSize},
		{"short payload", `<xmlh><xml size="10"/></xmlh>abc`, ErrShortFrame},
		{"broken suffix", `<xmlh><xml size="3"></xmlh>abc`, ErrInvalidHeader},
		{"unterminated name", `<xmlh><xml size="3" name="model`, ErrInvalidHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.ErrorIs(err, tt.err)
		})
	}
}

func TestSpeedCommand(t *testing.T) {
	require := require.New(t)

	require.Equal(`<lc id="BR103" V="50" dir="true"/>`, SpeedCommand("BR103", 50, true))
	require.Equal(`<lc id="BR103" V="0" dir="false"/>`, SpeedCommand("BR103", 0, false))

	// clamped to the protocol range
	require.Equal(`<lc id="BR103" V="100" dir="true"/>`, SpeedCommand("BR103", 250, true))
	require.Equal(`<lc id="BR103" V="0" dir="true"/>`, SpeedCommand("BR103", -5, true))
}

func TestFunctionCommand(t *testing.T) {
	require := require.New(t)

	require.Equal(`<fn id="BR103" f0="true" fnchanged="0"/>`, FunctionCommand("BR103", true))
	require.Equal(`<fn id="BR103" f0="false" fnchanged="0"/>`, FunctionCommand("BR103", false))
}
