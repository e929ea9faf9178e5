package paths

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

func shortHex(a common.Address, sep string) string {
	s := strings.ToLower(a.Hex())
	return s[:6] + sep + s[len(s)-4:]
}

func (d PoolDirection) String() string {
	return fmt.Sprintf("Pool: %s | Token In: %s → Token Out: %s",
		shortHex(d.Pool, "..."), shortHex(d.TokenIn, "..."), shortHex(d.TokenOut, "..."))
}

// FormatPath renders a cyclic path as its token sequence. Paths that do not return to their
// first token render as the empty string.
func FormatPath(path Path) string {
	if len(path) == 0 {
		return "[Empty Path]"
	}
	if len(path) < 2 || path[len(path)-1].TokenOut != path[0].TokenIn {
		return ""
	}
	tokens := make([]string, len(path))
	for i, hop := range path {
		tokens[i] = strings.ToLower(hop.TokenOut.Hex())[:10]
	}
	return fmt.Sprintf("path DETECTED: %s → %s\n", strings.ToLower(path[0].TokenIn.Hex())[:10], strings.Join(tokens, " → "))
}

// FormatPathSummary renders token (pool) token ... with shortened addresses.
func FormatPathSummary(path Path) string {
	if len(path) == 0 {
		return "[Empty path]"
	}
	parts := make([]string, 0, 1+2*len(path))
	parts = append(parts, shortHex(path[0].TokenIn, ".."))
	for _, hop := range path {
		parts = append(parts, "("+shortHex(hop.Pool, "..")+")", shortHex(hop.TokenOut, ".."))
	}
	return strings.Join(parts, " → ")
}
