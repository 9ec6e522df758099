package payments

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Correlation is the payload carried through the gateway pass-through field
// so the callback can find every sibling order of one checkout.
type Correlation struct {
	OrderNumbers []string
}

// Encode renders the correlation as a JSON array of order numbers.
func (c Correlation) Encode() string {
	numbers := c.OrderNumbers
	if numbers == nil {
		numbers = []string{}
	}
	buf, _ := json.Marshal(numbers)
	return string(buf)
}

// DecodeCorrelation parses raw. When raw is missing or malformed the result
// falls back to the single primary order and the parse error is returned so
// the caller can log it.
func DecodeCorrelation(raw, primaryOrderNumber string) (Correlation, error) {
	fallback := Correlation{}
	if primaryOrderNumber != "" {
		fallback.OrderNumbers = []string{primaryOrderNumber}
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	var numbers []string
	if err := json.Unmarshal([]byte(raw), &numbers); err != nil {
		return fallback, fmt.Errorf("decode correlation payload: %w", err)
	}

	out := Correlation{OrderNumbers: make([]string, 0, len(numbers)+1)}
	seen := make(map[string]struct{}, len(numbers)+1)
	add := func(n string) {
		n = strings.TrimSpace(n)
		if n == "" {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out.OrderNumbers = append(out.OrderNumbers, n)
	}
	add(primaryOrderNumber)
	for _, n := range numbers {
		add(n)
	}
	return out, nil
}

// Siblings returns every order number other than primary.
func (c Correlation) Siblings(primary string) []string {
	out := make([]string, 0, len(c.OrderNumbers))
	for _, n := range c.OrderNumbers {
		if n != primary {
			out = append(out, n)
		}
	}
	return out
}
