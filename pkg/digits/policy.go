package digits

import (
	"fmt"
	"sort"
)

// Rule maps every rune in From to To.
type Rule struct {
	From string
	To   rune
}

// Policy is a named, versioned character-confusion table. Rules are consulted in
// order and the first rule listing a rune wins, so a later rule for the same rune
// never fires.
type Policy struct {
	Name     string
	Version  int
	CaseFold bool
	Rules    []Rule
}

// ID returns the policy identifier, e.g. "printed/v1".
func (p *Policy) ID() string {
	return fmt.Sprintf("%s/v%d", p.Name, p.Version)
}

// substitute returns the replacement for r and whether a rule matched.
func (p *Policy) substitute(r rune) (rune, bool) {
	for _, rule := range p.Rules {
		for _, from := range rule.From {
			if from == r {
				return rule.To, true
			}
		}
	}
	return r, false
}

var (
	// Printed is the default table for printed digits and LCD readouts.
	Printed = &Policy{
		Name:     "printed",
		Version:  1,
		CaseFold: true,
		Rules: []Rule{
			{From: "OQDU", To: '0'},
			{From: "IJL!|/", To: '1'},
			{From: "Z", To: '2'},
			{From: "SG", To: '5'},
			{From: "B&", To: '8'},
		},
	}

	// SevenSegment is the live seven-segment table. The trailing G rule is
	// shadowed by S,G->5 and is kept so the table matches what scanners shipped.
	SevenSegment = &Policy{
		Name:     "seven-segment",
		Version:  1,
		CaseFold: true,
		Rules: []Rule{
			{From: "OQDU", To: '0'},
			{From: "IJL!|/", To: '1'},
			{From: "Z", To: '2'},
			{From: "SG", To: '5'},
			{From: "T", To: '7'},
			{From: "B&", To: '8'},
			{From: "G", To: '6'},
		},
	}

	// Meter is the snapshot meter table. It is case sensitive: lower-case o and l
	// are mapped, upper-case L and lower-case s, b, i are not.
	Meter = &Policy{
		Name:    "meter",
		Version: 1,
		Rules: []Rule{
			{From: "Oo", To: '0'},
			{From: "I", To: '1'},
			{From: "l", To: '1'},
			{From: "S", To: '5'},
			{From: "B", To: '8'},
		},
	}
)

// DefaultPolicy is used by Normalize.
var DefaultPolicy = Printed

// Policies lists the built-in policies by ID.
var Policies = map[string]*Policy{
	Printed.ID():      Printed,
	SevenSegment.ID(): SevenSegment,
	Meter.ID():        Meter,
}

// Lookup returns the built-in policy with the given ID. An empty id selects the
// default policy.
func Lookup(id string) (*Policy, error) {
	if id == "" {
		return DefaultPolicy, nil
	}
	p, ok := Policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, id)
	}
	return p, nil
}

// PolicyIDs returns the built-in policy IDs in sorted order.
func PolicyIDs() []string {
	ids := make([]string, 0, len(Policies))
	for id := range Policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
