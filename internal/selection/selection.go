// Package selection parses the operator's change-selection expression into a
// set of 1-based indices over the candidate list.
//
// Grammar: "" | "a" | "A" | "n" | "N" | token (',' token)*
// where token = INTEGER | INTEGER '-' INTEGER.
package selection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrorKind identifies why a selection expression was rejected
type ErrorKind int

const (
	// InvalidToken marks a token that is neither an integer nor a range
	InvalidToken ErrorKind = iota
	// InvalidNumber marks an integer outside 1..max
	InvalidNumber
	// InvalidRange marks a range with swapped or out-of-bounds endpoints
	InvalidRange
)

// String returns the name of the error kind
func (k ErrorKind) String() string {
	switch k {
	case InvalidToken:
		return "invalid token"
	case InvalidNumber:
		return "invalid number"
	case InvalidRange:
		return "invalid range"
	default:
		return "unknown"
	}
}

// ParseError reports the first offending token of a rejected expression. A
// rejected expression selects nothing: partial selections are never applied.
type ParseError struct {
	Kind  ErrorKind
	Token string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", e.Kind, e.Token)
}

// Parse evaluates a selection expression against a candidate list of the
// given size. It returns the selected indices deduplicated and in ascending
// order. Empty input and "a"/"A" select everything, "n"/"N" selects nothing.
func Parse(input string, max int) ([]int, error) {
	trimmed := strings.TrimSpace(input)

	switch trimmed {
	case "", "a", "A":
		all := make([]int, 0, max)
		for i := 1; i <= max; i++ {
			all = append(all, i)
		}
		return all, nil
	case "n", "N":
		return []int{}, nil
	}

	picked := make(map[int]bool)
	for _, token := range strings.Split(trimmed, ",") {
		token = strings.TrimSpace(token)

		if lo, hi, ok := strings.Cut(token, "-"); ok {
			start, err1 := strconv.Atoi(lo)
			end, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil {
				return nil, &ParseError{Kind: InvalidToken, Token: token}
			}
			// Swapped bounds are rejected, never auto-reversed.
			if start < 1 || end > max || start > end {
				return nil, &ParseError{Kind: InvalidRange, Token: token}
			}
			for i := start; i <= end; i++ {
				picked[i] = true
			}
			continue
		}

		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, &ParseError{Kind: InvalidToken, Token: token}
		}
		if n < 1 || n > max {
			return nil, &ParseError{Kind: InvalidNumber, Token: token}
		}
		picked[n] = true
	}

	result := make([]int, 0, len(picked))
	for i := range picked {
		result = append(result, i)
	}
	sort.Ints(result)
	return result, nil
}
