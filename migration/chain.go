package migration

import (
	"fmt"
	"sort"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/kit/errors"
	"github.com/docshift/docshift/schema"
)

// Chain is the fully ordered, root-to-head sequence of migration units.
type Chain struct {
	units []*Unit
	index map[docshift.ID]int
}

// BuildChain links the provided units, in unspecified input order, into a
// single chain ordered root-first. The parent links must form a simple
// path: exactly one root, no duplicate identities, no forks, no cycles,
// no missing parents. Violations fail with a chain integrity error; they
// are caught here at build time, never during apply.
//
// The result is deterministic: the same unit set produces the same
// sequence regardless of input order. An empty input produces an empty
// chain, which is valid.
func BuildChain(units []*Unit) (*Chain, error) {
	op := "migration.BuildChain"

	chain := &Chain{index: map[docshift.ID]int{}}
	if len(units) == 0 {
		return chain, nil
	}

	byID := make(map[docshift.ID]*Unit, len(units))
	var root *Unit
	for _, u := range units {
		if err := u.Validate(); err != nil {
			return nil, err
		}
		if _, ok := byID[u.ID]; ok {
			return nil, &errors.Error{
				Code: errors.EChainIntegrity,
				Op:   op,
				Msg:  fmt.Sprintf("duplicate migration id %s", u.ID),
			}
		}
		byID[u.ID] = u

		if u.ParentID == "" {
			if root != nil {
				return nil, &errors.Error{
					Code: errors.EChainIntegrity,
					Op:   op,
					Msg:  fmt.Sprintf("multiple root migrations: %s and %s", root.ID, u.ID),
				}
			}
			root = u
		}
	}
	if root == nil {
		return nil, &errors.Error{
			Code: errors.EChainIntegrity,
			Op:   op,
			Msg:  "no root migration found",
		}
	}

	childOf := make(map[docshift.ID]*Unit, len(units))
	for _, u := range units {
		if u.ParentID == "" {
			continue
		}
		parent, ok := byID[u.ParentID]
		if !ok {
			return nil, &errors.Error{
				Code: errors.EChainIntegrity,
				Op:   op,
				Msg:  fmt.Sprintf("migration %s references missing parent %s", u.ID, u.ParentID),
			}
		}
		if sibling, ok := childOf[parent.ID]; ok {
			return nil, &errors.Error{
				Code: errors.EChainIntegrity,
				Op:   op,
				Msg:  fmt.Sprintf("fork: migrations %s and %s share parent %s", sibling.ID, u.ID, parent.ID),
			}
		}
		childOf[parent.ID] = u
	}

	// walk the path from the root; with one root, no duplicates and no
	// forks, anything left unreached is orphaned or part of a cycle
	for u := root; u != nil; u = childOf[u.ID] {
		chain.index[u.ID] = len(chain.units)
		chain.units = append(chain.units, u)
	}

	if len(chain.units) != len(units) {
		var unreached []string
		for id := range byID {
			if _, ok := chain.index[id]; !ok {
				unreached = append(unreached, string(id))
			}
		}
		sort.Strings(unreached)
		return nil, &errors.Error{
			Code: errors.EChainIntegrity,
			Op:   op,
			Msg:  fmt.Sprintf("migrations unreachable from root: %v", unreached),
		}
	}

	return chain, nil
}

// Len returns the number of units in the chain.
func (c *Chain) Len() int {
	return len(c.units)
}

// Units returns the units in root-first order.
func (c *Chain) Units() []*Unit {
	out := make([]*Unit, len(c.units))
	copy(out, c.units)
	return out
}

// Head returns the last unit of the chain, or nil for an empty chain.
func (c *Chain) Head() *Unit {
	if len(c.units) == 0 {
		return nil
	}
	return c.units[len(c.units)-1]
}

// Get returns the unit with the given identity.
func (c *Chain) Get(id docshift.ID) (*Unit, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.units[i], true
}

// IndexOf returns the position of the identity in the chain, or -1.
func (c *Chain) IndexOf(id docshift.ID) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// ParentSnapshot returns the schema snapshot of the unit's parent, or
// nil for the root.
func (c *Chain) ParentSnapshot(u *Unit) *schema.Snapshot {
	if u.ParentID == "" {
		return nil
	}
	if parent, ok := c.Get(u.ParentID); ok {
		return parent.Snapshot
	}
	return nil
}
