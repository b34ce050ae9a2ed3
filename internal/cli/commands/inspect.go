package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormkit/internal/cli/ui"
	"github.com/conduit-lang/ormkit/internal/orm/query"
)

func newInspectCommand(opts *globalOptions) *cobra.Command {
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "inspect <Entity>",
		Short: "Show the resolved metadata of an entity type",
		Long: `Show the columns and relations of an entity type after defaults are
resolved: relation kinds, loading modes, foreign and binding keys and
junction tables.`,
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

			ui.Header(env.out, md.Name(), env.noColor)
			kv := ui.NewKeyValueTable(env.out, env.noColor)
			kv.AddRow("table", md.Table())
			kv.AddRow("primary key", fmt.Sprintf("%s (%s)", md.PrimaryKey(), md.KeyType()))
			if f := flags(md); f != "" {
				kv.AddRow("flags", f)
			}
			kv.Render()
			fmt.Fprintln(env.out)

			columns := ui.NewTable(env.out, env.noColor, "COLUMN", "TYPE")
			for _, col := range md.Columns() {
				columns.AddRow(col.Name, col.Type.String())
			}
			columns.Render()

			if rels := md.Relations(); len(rels) > 0 {
				fmt.Fprintln(env.out)
				relations := ui.NewTable(env.out, env.noColor,
					"RELATION", "KIND", "TARGET", "LOADING", "FOREIGN KEY", "BINDING KEY", "JUNCTION")
				for _, rel := range rels {
					relations.AddRow(rel.Name(), rel.Kind().String(), rel.TargetName(), rel.Loading().String(),
						rel.ForeignKey(), rel.BindingKey(), rel.Junction())
				}
				relations.Render()
			}

			if showSQL {
				dialect, err := env.dialect()
				if err != nil {
					return err
				}
				plan, err := query.NewList(md).Plan()
				if err != nil {
					return err
				}
				fmt.Fprintln(env.out)
				return printStatement(env, plan.Statement, dialect)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSQL, "sql", false, "Also print the eager listing SELECT")

	return cmd
}
