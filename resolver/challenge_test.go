package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkfetch/internal"
)

func TestSolveChallenge(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{
			name:     "sequential_digits",
			token:    "0123456789abcdef0123456789abcdef01234567",
			expected: "d2c7186598ab1a508a4f6064e4fa746323ab17c6",
		},
		{
			name:     "uppercase_token",
			token:    "3C5F0A1E9B8D7E6F5A4B3C2D1E0F9A8B7C6D5E4F",
			expected: "569d685eb9cd90c411bd4bedd3bda31f77dfc6a8",
		},
		{
			name:     "zero_token_yields_mask",
			token:    "0000000000000000000000000000000000000000",
			expected: challengeMask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SolveChallenge(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Len(t, got, 40)
		})
	}
}

func TestSolveChallenge_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "too_short", token: "0123456789abcdef"},
		{name: "too_long", token: "0123456789abcdef0123456789abcdef012345678"},
		{name: "non_hex", token: "0123456789abcdef0123456789abcdef0123456z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SolveChallenge(tt.token)
			require.Error(t, err)
			assert.Empty(t, got)
			assert.True(t, internal.IsType(err, internal.ErrMalformedToken))
		})
	}
}

func TestFindChallengeToken(t *testing.T) {
	page := `<html><script>var arg1='3C5F0A1E9B8D7E6F5A4B3C2D1E0F9A8B7C6D5E4F';</script></html>`

	token, ok := FindChallengeToken(page)
	assert.True(t, ok)
	assert.Equal(t, "3C5F0A1E9B8D7E6F5A4B3C2D1E0F9A8B7C6D5E4F", token)

	_, ok = FindChallengeToken("<html>no challenge here</html>")
	assert.False(t, ok)
}

func TestSolveChallengeInstallsCookie(t *testing.T) {
	transport := newScriptedTransport()
	transport.pages["https://disk.example"] = `var arg1='0123456789abcdef0123456789abcdef01234567';`

	require.NoError(t, solveChallenge(context.Background(), transport, "https://disk.example"))

	cookie := transport.cookies["https://disk.example"]
	require.NotNil(t, cookie)
	assert.Equal(t, ClearanceCookie, cookie.Name)
	assert.Equal(t, "d2c7186598ab1a508a4f6064e4fa746323ab17c6", cookie.Value)
}

func TestSolveChallengeWithoutToken(t *testing.T) {
	transport := newScriptedTransport()
	transport.pages["https://disk.example"] = "<html>welcome</html>"

	require.NoError(t, solveChallenge(context.Background(), transport, "https://disk.example"))
	assert.Empty(t, transport.cookies)
}

func TestSolveChallengeFetchFailure(t *testing.T) {
	transport := newScriptedTransport()

	err := solveChallenge(context.Background(), transport, "https://disk.example")
	require.Error(t, err)

	var linkErr *internal.LinkError
	require.ErrorAs(t, err, &linkErr)
	assert.Equal(t, "challenge", linkErr.Step)
	assert.Equal(t, internal.ErrTransport, linkErr.Type)
}
