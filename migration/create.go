package migration

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/docshift/docshift"
)

// Scaffolder writes migration source files into a project's migrations
// package. Generated files register their unit in the package registry at
// init time, so the chain builder discovers them without any manifest.
type Scaffolder struct {
	ids *docshift.IDGenerator
}

// NewScaffolder constructs a scaffolder using the given identity
// generator.
func NewScaffolder(ids *docshift.IDGenerator) *Scaffolder {
	if ids == nil {
		ids = docshift.NewIDGenerator()
	}
	return &Scaffolder{ids: ids}
}

var registryTmpl = template.Must(template.New("registry").Parse(`package {{.Package}}

import "github.com/docshift/docshift/migration"

// Registry collects this package's migration units. Each migration file
// registers itself in an init function.
var Registry = migration.NewRegistry()
`))

var unitTmpl = template.Must(template.New("unit").Parse(`package {{.Package}}

import (
	"github.com/docshift/docshift/migration"
	"github.com/docshift/docshift/schema"
)

func init() {
	Registry.Register(&migration.Unit{
		ID:       "{{.ID}}",
		ParentID: "{{.ParentID}}",
		Snapshot: {{.SnapshotExpr}},
		Migrate: func(b *migration.Builder) {
			// declare this migration's operations
		},
	})
}
`))

// Init creates the migrations package directory with its registry file.
// It fails if the registry file already exists.
func (s *Scaffolder) Init(dir, pkg string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, "registry.go")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("registry file %s already exists", path)
	}

	src, err := renderGoSource(registryTmpl, struct{ Package string }{Package: pkg})
	if err != nil {
		return err
	}
	return os.WriteFile(path, src, 0644)
}

// Generate creates a new migration file parented on the given identity
// (empty for a root migration) and returns the new identity and file
// path. The caller fills in the snapshot delta and operations.
func (s *Scaffolder) Generate(dir, pkg, label string, parentID docshift.ID) (docshift.ID, string, error) {
	id, err := s.ids.Generate(label)
	if err != nil {
		return "", "", err
	}

	snapshotExpr := "schema.NewSnapshot()"
	if parentID != "" {
		// head snapshots are edited copies of the parent's
		snapshotExpr = "schema.NewSnapshot() /* start from the parent snapshot and apply this migration's changes */"
	}

	src, err := renderGoSource(unitTmpl, struct {
		Package      string
		ID           docshift.ID
		ParentID     docshift.ID
		SnapshotExpr string
	}{
		Package:      pkg,
		ID:           id,
		ParentID:     parentID,
		SnapshotExpr: snapshotExpr,
	})
	if err != nil {
		return "", "", err
	}

	path := filepath.Join(dir, fileStem(id)+".go")
	if err := os.WriteFile(path, src, 0644); err != nil {
		return "", "", err
	}
	return id, path, nil
}

// fileStem turns an identity into a filename stem: the timestamp
// component plus the label with '-' and '@' mapped to '_'.
func fileStem(id docshift.ID) string {
	s := strings.ReplaceAll(string(id), "@", "_")
	return strings.ReplaceAll(s, "-", "_")
}

func renderGoSource(tmpl *template.Template, data interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := tmpl.Execute(buf, data); err != nil {
		return nil, err
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting generated source: %w", err)
	}
	return src, nil
}
