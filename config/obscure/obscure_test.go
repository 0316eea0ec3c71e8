package obscure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObscureRevealRoundTrip(t *testing.T) {
	for _, in := range []string{"", "potato", "a very long password with spaces"} {
		got, err := Obscure(in)
		require.NoError(t, err)
		assert.NotEqual(t, in, got)

		revealed, err := Reveal(got)
		require.NoError(t, err)
		assert.Equal(t, in, revealed, "not bidirectional")
	}
}

func TestMustObscureRevealRoundTrip(t *testing.T) {
	got := MustObscure("potato")
	assert.Equal(t, "potato", MustReveal(got))
}

func TestRevealErrors(t *testing.T) {
	for _, tc := range []struct{ in, wantErr string }{
		{"not*valid*base64*#$", "obscure: base64 decode failed when revealing password - is it obscured?"},
		{"aGVsbG8", "obscure: input too short when revealing password - is it obscured?"},
		{"", "obscure: input too short when revealing password - is it obscured?"},
	} {
		_, err := Reveal(tc.in)
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tc.wantErr)
		}
	}
}

func TestObscureDifferentIVsProduceDifferentOutput(t *testing.T) {
	a, err := Obscure("potato")
	require.NoError(t, err)
	b, err := Obscure("potato")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random IV should make repeated obscuring non-deterministic")
}
