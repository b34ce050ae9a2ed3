package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormkit/internal/cli/ui"
	"github.com/conduit-lang/ormkit/internal/orm/entity"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
)

func newCheckCommand(opts *globalOptions) *cobra.Command {
	var withDB bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate every entity definition",
		Long: `Build the metadata of every configured entity type and report all
definition errors at once: unknown relation targets, missing key columns,
one-to-many relations without a matching reverse relation and eager cycles.

With --db, each type's table is also counted against the configured database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer env.logger.Sync()

			reg, err := env.validRegistry()
			if err != nil {
				return err
			}

			var counts map[string]int64
			if withDB {
				if counts, err = countRows(cmd, env, reg); err != nil {
					return err
				}
			}

			headers := []string{"ENTITY", "TABLE", "KEY", "COLUMNS", "RELATIONS", "FLAGS"}
			if withDB {
				headers = append(headers, "ROWS")
			}
			table := ui.NewTable(env.out, env.noColor, headers...)
			for _, name := range reg.Names() {
				md := reg.MustMetadata(name)
				row := []string{
					md.Name(),
					md.Table(),
					fmt.Sprintf("%s (%s)", md.PrimaryKey(), md.KeyType()),
					strconv.Itoa(len(md.Columns())),
					strconv.Itoa(len(md.Relations())),
					flags(md),
				}
				if withDB {
					row = append(row, strconv.FormatInt(counts[name], 10))
				}
				table.AddRow(row...)
			}
			table.Render()

			fmt.Fprintln(env.out)
			ui.WriteSuccess(env.out, fmt.Sprintf("%d entity type(s) valid", reg.Count()), env.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withDB, "db", false, "Count each type's rows in the configured database")

	return cmd
}

func countRows(cmd *cobra.Command, env *environment, reg *schema.Registry) (map[string]int64, error) {
	db, err := env.open(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer db.Close()

	session := entity.NewSession(reg, db, entity.WithLogger(env.logger))
	counts := make(map[string]int64, reg.Count())
	for _, name := range reg.Names() {
		n, err := session.MustRepository(name).Query().ShowDeleted(true).Count(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

// flags lists the feature flags of an entity type
func flags(md *schema.Metadata) string {
	var out []string
	if md.Timestamps() {
		out = append(out, "timestamps")
	}
	if md.SoftDelete() {
		out = append(out, "soft-delete")
	}
	if md.ReadOnly() {
		out = append(out, "read-only")
	}
	return strings.Join(out, ", ")
}
