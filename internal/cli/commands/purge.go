package commands

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormkit/internal/cli/ui"
	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/query"
	"github.com/conduit-lang/ormkit/internal/orm/schema"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
	"github.com/conduit-lang/ormkit/internal/orm/transaction"
)

func newPurgeCommand(opts *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge <Entity>",
		Short: "Permanently delete soft-deleted rows",
		Long: `Hard-delete every soft-deleted row of an entity type together with the
junction rows of its many-to-many relations. Runs in one transaction and
asks for confirmation unless --yes is given.`,
		Args: cobra.ExactArgs(1),
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
			md, err := env.metadata(reg, args[0])
			if err != nil {
				return err
			}
			if !md.SoftDelete() {
				return fmt.Errorf("%s has no soft deletion", md.Name())
			}
			if md.ReadOnly() {
				return fmt.Errorf("%s is read-only", md.Name())
			}

			ctx := cmd.Context()
			db, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			pending, err := countDeleted(ctx, db, md)
			if err != nil {
				return err
			}
			if pending == 0 {
				fmt.Fprint(env.out, ui.FormatError(ui.ErrorOptions{
					Level:   ui.ErrorLevelInfo,
					Problem: fmt.Sprintf("no soft-deleted %s rows", md.Name()),
					NoColor: env.noColor,
				}))
				return nil
			}

			if !yes {
				confirmed := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Permanently delete %d soft-deleted %s row(s)?", pending, md.Name()),
				}
				if err := survey.AskOne(prompt, &confirmed); err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprint(env.out, ui.Warning("purge cancelled", env.noColor))
					return nil
				}
			}

			var purged int64
			manager := transaction.NewManager(db)
			err = manager.WithRetry(ctx, func(ctx context.Context) error {
				exec := transaction.Executor(ctx, db)
				for _, del := range junctionDeletes(reg, md) {
					if _, err := exec.Exec(ctx, del); err != nil {
						return err
					}
				}
				res, err := exec.Exec(ctx, statement.NewDelete(md.Table()).Where(deleted()))
				if err != nil {
					return err
				}
				purged = res.RowsAffected
				return nil
			})
			if err != nil {
				return fmt.Errorf("purge %s: %w", md.Name(), err)
			}

			ui.WriteSuccess(env.out, fmt.Sprintf("purged %d %s row(s)", purged, md.Name()), env.noColor)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func deleted() statement.Expr {
	return statement.IsNotNull(schema.DeletedAtColumn)
}

func countDeleted(ctx context.Context, db *database.DB, md *schema.Metadata) (int64, error) {
	sel := statement.NewSelect(md.Table(), "").CountAll(query.CountColumn).Where(deleted())
	rows, err := db.Query(ctx, sel)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := schema.Cast(schema.TypeInt, rows[0][query.CountColumn])
	if err != nil {
		return 0, err
	}
	return n.(int64), nil
}

// junctionDeletes removes the junction rows that reference purged rows of md,
// from md's own many-to-many relations and from relations targeting md
func junctionDeletes(reg *schema.Registry, md *schema.Metadata) []statement.Statement {
	purged := statement.NewSelect(md.Table(), "").Column(md.PrimaryKey(), "").Where(deleted())

	seen := map[string]bool{}
	var out []statement.Statement
	add := func(junction, column string) {
		if key := junction + "." + column; !seen[key] {
			seen[key] = true
			out = append(out, statement.NewDelete(junction).Where(statement.InSelect(column, purged)))
		}
	}

	for _, name := range reg.Names() {
		other := reg.MustMetadata(name)
		for _, rel := range other.Relations() {
			if rel.Kind() != schema.ManyToMany {
				continue
			}
			if other.Name() == md.Name() {
				add(rel.Junction(), rel.ForeignKey())
			}
			if rel.TargetName() == md.Name() {
				add(rel.Junction(), rel.BindingKey())
			}
		}
	}
	return out
}
