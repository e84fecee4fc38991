package backtest

import (
	"fmt"
	"strings"
)

// Kind names a weighting strategy. The set is closed.
type Kind string

const (
	MarketCapWeighted Kind = "market_cap_weighted"
	EqualWeighted     Kind = "equal_weighted"
)

// AllKinds returns every strategy in run order.
func AllKinds() []Kind {
	return []Kind{MarketCapWeighted, EqualWeighted}
}

// ParseKind validates a strategy name at the configuration boundary.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range AllKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// ParseKinds resolves a configured selection; empty selects every strategy.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return AllKinds(), nil
	}
	seen := make(map[Kind]bool, len(names))
	out := make([]Kind, 0, len(names))
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}
