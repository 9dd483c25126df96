// Package cli builds the docshift command tree. Migration units are Go
// code compiled into the calling binary, so projects embed this tree in
// their own main and hand it their migrations package registry; the bare
// docshift binary carries an empty registry and is only useful for
// scaffolding.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/migration"
	dsmongo "github.com/docshift/docshift/mongo"
)

const envPrefix = "DOCSHIFT"

// Options carry the scaffolding flag values shared by init and generate.
// Connection and logging settings are read through viper so environment
// variables override flags.
type Options struct {
	Dir     string
	Package string
}

type cli struct {
	registry *migration.Registry
	opts     Options
	viper    *viper.Viper
}

// NewRootCommand builds the docshift command tree over the given
// registry. A nil registry behaves like an empty one.
func NewRootCommand(registry *migration.Registry) *cobra.Command {
	if registry == nil {
		registry = migration.NewRegistry()
	}

	c := &cli{
		registry: registry,
		viper:    viper.New(),
	}
	c.viper.SetEnvPrefix(envPrefix)
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "docshift",
		Short:         "Schema migrations for document databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("mongodb-uri", "mongodb://localhost:27017", "MongoDB connection string")
	flags.String("database", "", "database name")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	for _, name := range []string{"mongodb-uri", "database", "log-level"} {
		_ = c.viper.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(
		c.initCommand(),
		c.generateCommand(),
		c.checkCommand(),
		c.statusCommand(),
		c.migrateCommand(),
		c.rollbackCommand(),
	)
	return cmd
}

func (c *cli) logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func (c *cli) chain() (*migration.Chain, error) {
	return migration.BuildChain(c.registry.Units())
}

// connect opens the configured database and wires the mongo-backed
// executor collaborators. The returned close func disconnects.
func (c *cli) connect(ctx context.Context) (docshift.Driver, docshift.HistoryStore, docshift.ValidatorCompiler, func(), error) {
	uri := c.viper.GetString("mongodb-uri")
	name := c.viper.GetString("database")
	if name == "" {
		return nil, nil, nil, nil, fmt.Errorf("a database name is required; set --database or %s_DATABASE", envPrefix)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connecting to %s: %w", uri, err)
	}

	db := client.Database(name)
	closer := func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}
	return dsmongo.NewDriver(db), dsmongo.NewHistoryStore(db), dsmongo.NewCompiler(), closer, nil
}

func (c *cli) initCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a migrations package with an empty registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := migration.NewScaffolder(nil)
			if err := s.Init(c.opts.Dir, c.opts.Package); err != nil {
				return err
			}
			cmd.Printf("initialized migrations package in %s\n", c.opts.Dir)
			return nil
		},
	}
	c.scaffoldFlags(cmd.Flags())
	return cmd
}

func (c *cli) generateCommand() *cobra.Command {
	var parent string
	cmd := &cobra.Command{
		Use:   "generate <label>",
		Short: "Generate a new migration file parented on the chain head",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parentID := docshift.ID(parent)
			if parentID == "" {
				chain, err := c.chain()
				if err != nil {
					return err
				}
				if head := chain.Head(); head != nil {
					parentID = head.ID
				}
			}

			s := migration.NewScaffolder(nil)
			id, path, err := s.Generate(c.opts.Dir, c.opts.Package, args[0], parentID)
			if err != nil {
				return err
			}
			cmd.Printf("created migration %s at %s\n", id, path)
			return nil
		},
	}
	c.scaffoldFlags(cmd.Flags())
	cmd.Flags().StringVar(&parent, "parent", "", "explicit parent identity (defaults to the chain head)")
	return cmd
}

func (c *cli) scaffoldFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.opts.Dir, "dir", "migrations", "migrations package directory")
	flags.StringVar(&c.opts.Package, "package", "migrations", "migrations package name")
}

func (c *cli) checkCommand() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate and dry-run the migration chain without touching a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := c.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			chain, err := c.chain()
			if err != nil {
				return err
			}

			var opts []migration.ValidatorOption
			if strict {
				opts = append(opts, migration.WithStrictness(migration.StrictnessError))
			}
			result := migration.NewValidator(log, opts...).Validate(cmd.Context(), chain)

			for _, w := range result.Warnings {
				cmd.Printf("warning: %s\n", w)
			}
			for _, e := range result.Errors {
				cmd.Printf("error: %s\n", e)
			}
			if !result.OK() {
				return fmt.Errorf("chain validation failed with %d error(s)", len(result.Errors))
			}
			cmd.Printf("chain of %d migration(s) is valid\n", chain.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat additive drift warnings as errors")
	return cmd
}

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := c.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			chain, err := c.chain()
			if err != nil {
				return err
			}

			driver, history, _, closer, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			exec := migration.NewExecutor(log, driver, history)
			list, err := exec.List(cmd.Context(), chain)
			if err != nil {
				return err
			}

			applied := 0
			for _, u := range list {
				state := "pending"
				if u.Applied {
					state = "applied"
					applied++
				}
				cmd.Printf("%s  %s\n", state, u.ID)
			}
			cmd.Printf("applied: %d of %d\n", applied, len(list))
			return nil
		},
	}
}

func (c *cli) migrateCommand() *cobra.Command {
	var skipCheck bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := c.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			chain, err := c.chain()
			if err != nil {
				return err
			}

			if !skipCheck {
				result := migration.NewValidator(log).Validate(cmd.Context(), chain)
				for _, w := range result.Warnings {
					cmd.Printf("warning: %s\n", w)
				}
				if err := result.Err(); err != nil {
					return err
				}
			}

			driver, history, compiler, closer, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			exec := migration.NewExecutor(log, driver, history,
				migration.WithValidatorCompiler(compiler))
			applied, err := exec.Migrate(cmd.Context(), chain)
			for _, id := range applied {
				cmd.Printf("applied: %s\n", id)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				cmd.Println("nothing to do")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "skip chain validation before applying")
	return cmd
}

func (c *cli) rollbackCommand() *cobra.Command {
	var (
		to    string
		all   bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration (or further with --to / --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := c.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			chain, err := c.chain()
			if err != nil {
				return err
			}

			driver, history, compiler, closer, err := c.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closer()

			var opts []migration.RollbackOption
			if to != "" {
				opts = append(opts, migration.RollbackTo(docshift.ID(to)))
			}
			if all {
				opts = append(opts, migration.RollbackAll())
			}
			if force {
				opts = append(opts, migration.RollbackForce())
			}

			exec := migration.NewExecutor(log, driver, history,
				migration.WithValidatorCompiler(compiler))
			rolledBack, err := exec.Rollback(cmd.Context(), chain, opts...)
			for _, id := range rolledBack {
				cmd.Printf("rolled back: %s\n", id)
			}
			if err != nil {
				return err
			}
			if len(rolledBack) == 0 {
				cmd.Println("nothing to do")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "roll back until this migration is the last applied")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every applied migration")
	cmd.Flags().BoolVar(&force, "force", false, "permit rolling back through irreversible transforms")
	return cmd
}
