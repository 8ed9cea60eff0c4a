package sequencer

import (
	"hash/fnv"
	"math"
	"path"
	"strconv"
	"strings"
)

// NumberToken is a maximal run of ASCII digits found in a name.
// Start and Length count runes, not bytes.
type NumberToken struct {
	Value    int64
	Original string
	Start    int
	Length   int
}

// End is the rune index just past the token.
func (t NumberToken) End() int {
	return t.Start + t.Length
}

// StripExtension removes the last ".ext" suffix. A trailing dot with
// nothing after it is not an extension.
func StripExtension(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == "." || strings.ContainsAny(ext, `/\`) {
		return name
	}
	return strings.TrimSuffix(name, ext)
}

// ExtractNumbers scans s left to right and returns every digit run.
// Runs too large for int64 saturate at math.MaxInt64.
func ExtractNumbers(s string) []NumberToken {
	runes := []rune(s)
	var tokens []NumberToken
	for i := 0; i < len(runes); {
		if !isDigit(runes[i]) {
			i++
			continue
		}
		start := i
		for i < len(runes) && isDigit(runes[i]) {
			i++
		}
		digits := string(runes[start:i])
		tokens = append(tokens, NumberToken{
			Value:    parseDigits(digits),
			Original: digits,
			Start:    start,
			Length:   i - start,
		})
	}
	return tokens
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func parseDigits(digits string) int64 {
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return math.MaxInt64
	}
	return v
}

// separators that mark a number as a deliberate label rather than part of a word
func isSeparator(r rune) bool {
	switch r {
	case '-', '_', ' ', '.', '(', ')', '[', ']':
		return true
	}
	return false
}

func separatorAt(runes []rune, i int) bool {
	if i < 0 || i >= len(runes) {
		return false
	}
	return isSeparator(runes[i])
}

// scoreToken rates how likely a token is the volume/chapter number of
// the name. The weights are tuned against real-world file names and
// changing them reorders ambiguous batches.
func scoreToken(tok NumberToken, runes []rune) int {
	n := len(runes)
	score := 0

	switch {
	case tok.Start == 0 || tok.End() == n:
		score += 50
	case float64(tok.Start) < float64(n)*0.2 || float64(tok.Start) > float64(n)*0.8:
		score += 30
	}

	if tok.Length >= 1 && tok.Length <= 3 {
		score += 30 - (tok.Length-1)*5
	}

	if tok.Value <= 999 {
		score += max(0, 20-int(tok.Value/50))
	}

	if separatorAt(runes, tok.Start-1) || separatorAt(runes, tok.End()) {
		score += 15
	}

	return score
}

// PrimaryNumber picks the ordering key for a stripped name.
func PrimaryNumber(stripped string, tokens []NumberToken) int64 {
	switch len(tokens) {
	case 0:
		return hashName(stripped)
	case 1:
		return tokens[0].Value
	}

	runes := []rune(stripped)
	best := tokens[0]
	bestScore := scoreToken(best, runes)
	for _, tok := range tokens[1:] {
		// strict comparison keeps the leftmost token on ties
		if s := scoreToken(tok, runes); s > bestScore {
			best, bestScore = tok, s
		}
	}
	return best.Value
}

// hashName is FNV-1a over the UTF-8 bytes; always non-negative.
func hashName(s string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum32())
}
