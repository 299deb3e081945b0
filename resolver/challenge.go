package resolver

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"linkfetch/internal"
)

// ClearanceCookie is the cookie the disk provider's anti-bot gate expects.
const ClearanceCookie = "acw_sc__v2"

const tokenLength = 40

// challengePermutation maps output position j to token position challengePermutation[j]-1.
var challengePermutation = [tokenLength]int{
	15, 35, 29, 24, 33, 16, 1, 38, 10, 9,
	19, 31, 40, 27, 22, 23, 25, 13, 6, 11,
	39, 18, 20, 8, 14, 21, 32, 26, 2, 30,
	7, 4, 17, 5, 3, 28, 34, 37, 12, 36,
}

const challengeMask = "3000176000856006061501533003690027800375"

var challengeTokenPattern = regexp.MustCompile(`(?i)var arg1='([^']+)'`)

// FindChallengeToken returns the challenge token embedded in page, if any.
func FindChallengeToken(page string) (string, bool) {
	m := challengeTokenPattern.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SolveChallenge derives the clearance cookie value from a 40 hex digit token.
func SolveChallenge(token string) (string, error) {
	if len(token) != tokenLength {
		return "", internal.NewMalformedTokenError(
			fmt.Sprintf("token must be %d characters, got %d", tokenLength, len(token)))
	}
	for i := 0; i < len(token); i++ {
		if hexValue(token[i]) < 0 {
			return "", internal.NewMalformedTokenError(
				fmt.Sprintf("token has non-hex character %q at position %d", token[i], i))
		}
	}

	var permuted [tokenLength]byte
	for j, source := range challengePermutation {
		permuted[j] = token[source-1]
	}

	var out strings.Builder
	out.Grow(tokenLength)
	for i := 0; i < tokenLength; i += 2 {
		value := hexByte(permuted[i], permuted[i+1]) ^ hexByte(challengeMask[i], challengeMask[i+1])
		fmt.Fprintf(&out, "%02x", value)
	}
	return out.String(), nil
}

func hexByte(hi, lo byte) byte {
	return byte(hexValue(hi)<<4 | hexValue(lo))
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// solveChallenge fetches the bare domain and installs the clearance cookie for
// it when the page carries a challenge. A page without one is not an error.
func solveChallenge(ctx context.Context, transport internal.Transport, domain string) error {
	page, err := transport.GetString(ctx, domain, nil)
	if err != nil {
		return withStep(err, "challenge")
	}

	token, ok := FindChallengeToken(page)
	if !ok {
		internal.LogDebug("No challenge token on %s", domain)
		return nil
	}

	value, err := SolveChallenge(token)
	if err != nil {
		return err
	}

	internal.LogDebug("Installing %s=%s for %s", ClearanceCookie, value, domain)
	return transport.SetCookie(domain, &http.Cookie{Name: ClearanceCookie, Value: value})
}

// withStep records step on a LinkError that does not carry one yet.
func withStep(err error, step string) error {
	if linkErr, ok := err.(*internal.LinkError); ok && linkErr.Step == "" {
		linkErr.Step = step
	}
	return err
}
