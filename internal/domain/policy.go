package domain

import "fmt"

// SubstitutionPolicy selects which cache tiers may provide substitute tiles
type SubstitutionPolicy int

const (
	// SubstitutionAll searches both the visible and the preloading tier
	SubstitutionAll SubstitutionPolicy = iota
	// SubstitutionVisible searches only the visible tier, plus the preloading tier for preloading tiles
	SubstitutionVisible
)

func (p SubstitutionPolicy) String() string {
	switch p {
	case SubstitutionAll:
		return "all"
	case SubstitutionVisible:
		return "visible"
	}
	return fmt.Sprintf("SubstitutionPolicy(%d)", int(p))
}

func ParseSubstitutionPolicy(raw string) (SubstitutionPolicy, error) {
	switch raw {
	case "all":
		return SubstitutionAll, nil
	case "visible":
		return SubstitutionVisible, nil
	}
	return 0, fmt.Errorf("%w: unknown substitution policy %q", ErrInvalidArgument, raw)
}
