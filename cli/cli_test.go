package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/cli"
	"github.com/docshift/docshift/migration"
	"github.com/docshift/docshift/schema"
)

func run(t *testing.T, registry *migration.Registry, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand(registry)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInitAndGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	out, err := run(t, nil, "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "initialized")

	_, err = os.Stat(filepath.Join(dir, "registry.go"))
	require.NoError(t, err)

	out, err = run(t, nil, "generate", "add-users", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "created migration")
	assert.Contains(t, out, "@add-users")
}

func TestCheckReportsFindings(t *testing.T) {
	registry := migration.NewRegistry()

	snap := schema.NewSnapshot()
	snap.Collections["users"] = schema.Object(schema.F("email", schema.String()))
	registry.Register(&migration.Unit{
		ID:       "2024_01_01_0900_AAAAAA@create-users",
		Snapshot: snap,
		// the declared collection is never created
		Migrate: func(b *migration.Builder) {},
	})

	out, err := run(t, registry, "check")
	require.Error(t, err)
	assert.Contains(t, out, "never created")
}

func TestCheckPassesValidChain(t *testing.T) {
	registry := migration.NewRegistry()

	snap := schema.NewSnapshot()
	snap.Collections["users"] = schema.Object(schema.F("email", schema.String().Unique()))
	registry.Register(&migration.Unit{
		ID:       "2024_01_01_0900_AAAAAA@create-users",
		Snapshot: snap,
		Migrate: func(b *migration.Builder) {
			b.CreateCollection("users")
		},
	})

	out, err := run(t, registry, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestEnvironmentOverridesFlags(t *testing.T) {
	t.Setenv("DOCSHIFT_LOG_LEVEL", "bogus")

	registry := migration.NewRegistry()
	registry.Register(&migration.Unit{
		ID:       "2024_01_01_0900_AAAAAA@create-users",
		Snapshot: schema.NewSnapshot(),
		Migrate:  func(b *migration.Builder) {},
	})

	_, err := run(t, registry, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing log level")
}

func TestCheckRejectsBrokenChain(t *testing.T) {
	registry := migration.NewRegistry()
	for _, id := range []string{
		"2024_01_01_0900_AAAAAA@one",
		"2024_01_02_0900_BBBBBB@two",
	} {
		registry.Register(&migration.Unit{
			ID:       docshift.ID(id),
			Snapshot: schema.NewSnapshot(),
			Migrate:  func(b *migration.Builder) {},
		})
	}

	_, err := run(t, registry, "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple root")
}
