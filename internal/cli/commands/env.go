package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/ormkit/internal/cli/config"
	"github.com/conduit-lang/ormkit/internal/cli/ui"
	"github.com/conduit-lang/ormkit/internal/logging"
	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

// environment is what a subcommand works against: the loaded configuration,
// a logger and the command's output streams
type environment struct {
	cfg     *config.Config
	logger  *zap.Logger
	out     io.Writer
	errOut  io.Writer
	noColor bool
}

func (o *globalOptions) load(cmd *cobra.Command) (*environment, error) {
	path := o.configPath
	if path == "" {
		if found, err := config.FindConfig(); err == nil {
			path = found
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		ui.WriteError(cmd.ErrOrStderr(), ui.ErrorOptions{
			Context:      "configuration error",
			Problem:      err.Error(),
			HelpCommands: []string{"View config: cat ormkit.yml", "Get help: ormkit --help"},
			NoColor:      o.noColor,
		})
		return nil, err
	}

	level := cfg.Level()
	if o.verbose {
		level = zapcore.DebugLevel
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &environment{
		cfg:     cfg,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		noColor: o.noColor,
	}, nil
}

// registry registers every configured entity type and builds its metadata,
// returning one error per invalid definition
func (e *environment) registry() (*schema.Registry, []error) {
	reg := schema.NewRegistry()
	var errs []error
	for _, def := range e.cfg.Entities {
		if err := reg.Register(def); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range reg.Names() {
		if _, err := reg.Metadata(name); err != nil {
			errs = append(errs, err)
		}
	}
	return reg, errs
}

// validRegistry is registry for commands that need every definition valid
func (e *environment) validRegistry() (*schema.Registry, error) {
	reg, errs := e.registry()
	if len(errs) > 0 {
		fmt.Fprint(e.errOut, ui.DefinitionErrors(errs, e.noColor))
		return nil, fmt.Errorf("%d invalid entity definition(s)", len(errs))
	}
	return reg, nil
}

// metadata looks up one entity type, suggesting close names when it is unknown
func (e *environment) metadata(reg *schema.Registry, name string) (*schema.Metadata, error) {
	md, err := reg.Metadata(name)
	if errors.Is(err, schema.ErrUnknownEntity) {
		fmt.Fprint(e.errOut, ui.UnknownEntityError(name, ui.FindSimilar(name, reg.Names()), e.noColor))
	}
	return md, err
}

func (e *environment) dialect() (database.Dialect, error) {
	return database.DialectFor(e.cfg.Database.Driver)
}

// open connects to the configured database
func (e *environment) open(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(e.cfg.Database.Driver, e.cfg.Database.URL, e.logger)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
