package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/ormkit/internal/orm/database"
	"github.com/conduit-lang/ormkit/internal/orm/query"
	"github.com/conduit-lang/ormkit/internal/orm/statement"
)

// filterOperators are matched longest first so "is not null" wins over "in"
var filterOperators = []string{"is not null", "is null", "not in", ">=", "<=", "!=", "<>", "==", "like", "in", "=", ">", "<"}

func newSQLCommand(opts *globalOptions) *cobra.Command {
	var (
		where       []string
		orWhere     []string
		orderBy     []string
		limit       int
		offset      int
		showDeleted bool
		count       bool
		dialectName string
	)

	cmd := &cobra.Command{
		Use:   "sql <Entity>",
		Short: "Print the SQL the engine issues for a listing",
		Long: `Compile a listing of an entity type, with its eager joins, into the SQL
and arguments the engine would send. Nothing is executed.

Filters are "<column> <operator> [value]"; "in" and "not in" take a comma
separated list. Every --where must hold; at least one --or must hold.

  ormkit sql User --where "age >= 18" --or "role = admin" --or "age < 18"
  ormkit sql Post --where "user_id in 1,2,3" --order "title desc" --limit 10`,
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

			dialect, err := env.dialect()
			if dialectName != "" {
				dialect, err = database.DialectFor(dialectName)
			}
			if err != nil {
				return err
			}

			list := query.NewList(md).ShowDeleted(showDeleted)
			for _, raw := range where {
				f, err := parseFilter(raw)
				if err != nil {
					return err
				}
				list.Where(f.Column, f.Op, f.Value)
			}
			if len(orWhere) > 0 {
				group := make([]query.Filter, 0, len(orWhere))
				for _, raw := range orWhere {
					f, err := parseFilter(raw)
					if err != nil {
						return err
					}
					group = append(group, f)
				}
				list.OrWhere(group...)
			}
			for _, raw := range orderBy {
				fields := strings.Fields(raw)
				switch len(fields) {
				case 1:
					list.OrderBy(fields[0], "asc")
				case 2:
					list.OrderBy(fields[0], fields[1])
				default:
					return fmt.Errorf("invalid --order %q, want \"<column> [asc|desc]\"", raw)
				}
			}
			if cmd.Flags().Changed("limit") {
				list.Limit(limit)
			}
			if cmd.Flags().Changed("offset") {
				list.Offset(offset)
			}

			if count {
				sel, err := list.CountStatement()
				if err != nil {
					return err
				}
				return printStatement(env, sel, dialect)
			}
			plan, err := list.Plan()
			if err != nil {
				return err
			}
			return printStatement(env, plan.Statement, dialect)
		},
	}

	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Filter that must hold (repeatable)")
	cmd.Flags().StringArrayVar(&orWhere, "or", nil, "Filter of which at least one must hold (repeatable)")
	cmd.Flags().StringArrayVarP(&orderBy, "order", "o", nil, "Sort key \"<column> [asc|desc]\" (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of entities")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of entities to skip")
	cmd.Flags().BoolVar(&showDeleted, "deleted", false, "Include soft-deleted rows")
	cmd.Flags().BoolVar(&count, "count", false, "Print the COUNT statement instead")
	cmd.Flags().StringVar(&dialectName, "dialect", "", "Driver whose placeholders to use (default: database.driver)")

	return cmd
}

// parseFilter reads "<column> <operator> [value]"
func parseFilter(raw string) (query.Filter, error) {
	column, rest, ok := strings.Cut(strings.TrimSpace(raw), " ")
	if !ok || column == "" {
		return query.Filter{}, fmt.Errorf("invalid filter %q, want \"<column> <operator> [value]\"", raw)
	}
	rest = strings.TrimSpace(rest)
	lowered := strings.ToLower(rest)

	for _, op := range filterOperators {
		if !strings.HasPrefix(lowered, op) {
			continue
		}
		value := strings.TrimSpace(rest[len(op):])
		// word operators must end at a word boundary
		if op[0] >= 'a' && op[0] <= 'z' && len(rest) > len(op) && rest[len(op)] != ' ' {
			continue
		}

		switch op {
		case "is null", "is not null":
			if value != "" {
				return query.Filter{}, fmt.Errorf("invalid filter %q: %s takes no value", raw, op)
			}
			return query.F(column, op, nil), nil
		case "in", "not in":
			var values []interface{}
			for _, v := range strings.Split(value, ",") {
				if v = strings.TrimSpace(v); v != "" {
					values = append(values, v)
				}
			}
			return query.F(column, op, values), nil
		default:
			if value == "" {
				return query.Filter{}, fmt.Errorf("invalid filter %q: %s needs a value", raw, op)
			}
			return query.F(column, op, value), nil
		}
	}
	return query.Filter{}, fmt.Errorf("invalid filter %q: unknown operator", raw)
}

// printStatement writes the statement bound for dialect followed by its arguments
func printStatement(env *environment, stmt statement.Statement, dialect database.Dialect) error {
	sql, params, err := statement.Compile(stmt, dialect.Style)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.out, "%s;\n", sql)
	if len(params) > 0 {
		fmt.Fprintf(env.out, "-- args: %v\n", params)
	}
	return nil
}
