package plan

// Catalog resolves payment-provider identifiers to plan and package
// configuration. Implementations must be safe for concurrent reads.
type Catalog interface {
	// ResolvePlan returns the plan sold under the given price id, or
	// false when the price is unknown.
	ResolvePlan(priceID string) (*Plan, bool)

	// ResolvePackage returns the one-time credit package with the
	// given id, or false when unknown.
	ResolvePackage(packageID string) (*Package, bool)

	// FreePlan returns the enabled free plan users without a payment
	// fall back to, or false when none is configured.
	FreePlan() (*Plan, bool)
}

// Static is an immutable in-memory Catalog built from fixed tables.
type Static struct {
	plans    map[string]*Plan
	packages map[string]*Package
}

var _ Catalog = (*Static)(nil)

// NewStatic builds a Static catalog. Later entries with a duplicate
// key overwrite earlier ones.
func NewStatic(plans []*Plan, packages []*Package) *Static {
	s := &Static{
		plans:    make(map[string]*Plan, len(plans)),
		packages: make(map[string]*Package, len(packages)),
	}
	for _, p := range plans {
		s.plans[p.PriceID] = p
	}
	for _, pkg := range packages {
		s.packages[pkg.ID] = pkg
	}
	return s
}

func (s *Static) ResolvePlan(priceID string) (*Plan, bool) {
	p, ok := s.plans[priceID]
	return p, ok
}

func (s *Static) ResolvePackage(packageID string) (*Package, bool) {
	p, ok := s.packages[packageID]
	return p, ok
}

// FreePlan returns the first enabled free plan that grants credits.
func (s *Static) FreePlan() (*Plan, bool) {
	for _, p := range s.plans {
		if p.Free && !p.Disabled && p.GrantsCredits() {
			return p, true
		}
	}
	return nil, false
}

// Plans returns all configured plans in unspecified order.
func (s *Static) Plans() []*Plan {
	out := make([]*Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out
}
