package docshift

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/docshift/docshift/kit/errors"
)

// ID is a migration identity: a sortable timestamp component with a random
// disambiguator, followed by a human label, in the form
//
//	2024_01_15_0930_4K7KQZ@add-users
//
// The identity doubles as filename stem and primary key. Ordering between
// two identities is defined strictly by comparing the timestamp component
// (which includes the disambiguator) lexicographically; the label is
// informational only.
type ID string

var (
	idRegexp    = regexp.MustCompile(`^\d{4}_\d{2}_\d{2}_\d{4}_[A-Z0-9]+@[a-z0-9-]+$`)
	labelRegexp = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// ParseID validates the raw identity string and returns it as an ID.
func ParseID(s string) (ID, error) {
	id := ID(s)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks the identity against the required format.
func (id ID) Validate() error {
	if !idRegexp.MatchString(string(id)) {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  fmt.Sprintf("malformed migration identity %q", string(id)),
		}
	}
	return nil
}

// Valid reports whether the identity matches the required format.
func (id ID) Valid() bool {
	return id.Validate() == nil
}

// Timestamp returns the sortable component of the identity, including the
// random disambiguator.
func (id ID) Timestamp() string {
	if i := strings.IndexByte(string(id), '@'); i >= 0 {
		return string(id[:i])
	}
	return string(id)
}

// Label returns the human label of the identity.
func (id ID) Label() string {
	if i := strings.IndexByte(string(id), '@'); i >= 0 {
		return string(id[i+1:])
	}
	return ""
}

// Less reports whether id orders strictly before other.
func (id ID) Less(other ID) bool {
	return id.Timestamp() < other.Timestamp()
}

// CompareIDs returns -1, 0 or 1 ordering a relative to b by timestamp
// component.
func CompareIDs(a, b ID) int {
	return strings.Compare(a.Timestamp(), b.Timestamp())
}

const (
	disambiguatorAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	disambiguatorLen      = 6
	timestampLayout       = "2006_01_02_1504"
)

// IDGenerator creates fresh migration identities. The zero configuration
// uses wall-clock time and a time-seeded random source; both are
// injectable for tests.
type IDGenerator struct {
	mu    sync.Mutex
	clock clock.Clock
	rand  *rand.Rand
}

// IDGeneratorOption configures an IDGenerator.
type IDGeneratorOption func(*IDGenerator)

// WithClock sets the clock used for the timestamp component.
func WithClock(c clock.Clock) IDGeneratorOption {
	return func(g *IDGenerator) {
		g.clock = c
	}
}

// WithRandSource sets the random source used for the disambiguator.
func WithRandSource(src rand.Source) IDGeneratorOption {
	return func(g *IDGenerator) {
		g.rand = rand.New(src)
	}
}

// NewIDGenerator constructs and configures a new IDGenerator.
func NewIDGenerator(opts ...IDGeneratorOption) *IDGenerator {
	g := &IDGenerator{
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rand == nil {
		g.rand = rand.New(rand.NewSource(g.clock.Now().UnixNano()))
	}
	return g
}

// Generate returns a fresh identity for the provided label.
func (g *IDGenerator) Generate(label string) (ID, error) {
	if !labelRegexp.MatchString(label) {
		return "", &errors.Error{
			Code: errors.EInvalid,
			Msg:  fmt.Sprintf("migration label %q must match %s", label, labelRegexp.String()),
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.WriteString(g.clock.Now().UTC().Format(timestampLayout))
	b.WriteByte('_')
	for i := 0; i < disambiguatorLen; i++ {
		b.WriteByte(disambiguatorAlphabet[g.rand.Intn(len(disambiguatorAlphabet))])
	}
	b.WriteByte('@')
	b.WriteString(label)

	return ID(b.String()), nil
}
