package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hatlonely/dbkit/rdb"
	"github.com/hatlonely/dbkit/schema"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// cli 一次命令执行的状态，app 在 PersistentPreRunE 中创建，run 返回前关闭
type cli struct {
	configFile  string
	format      string
	metricsAddr string

	app *App
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) error {
	c := &cli{}
	cmd := c.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if c.app != nil {
		if closeErr := c.app.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (c *cli) newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbkit",
		Short: "dbkit - schema-driven data access",
		Long: `dbkit browses, edits and searches relational tables using the schema
read from the database catalog and the tables declared in the config file.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			if c.format != formatTable && c.format != formatJSON {
				return errors.Errorf("unsupported format: %s", c.format)
			}

			options, err := LoadOptions(c.configFile)
			if err != nil {
				return err
			}
			app, err := NewAppWithOptions(cmd.Context(), options)
			if err != nil {
				return err
			}
			c.app = app
			if c.metricsAddr != "" {
				app.ServeMetrics(c.metricsAddr)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&c.configFile, "config", "dbkit.yaml", "config file (yaml, toml, json or ini)")
	rootCmd.PersistentFlags().StringVarP(&c.format, "format", "f", formatTable, "output format (table|json)")
	rootCmd.PersistentFlags().StringVar(&c.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{formatTable, formatJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		c.newTablesCommand(),
		c.newDescribeCommand(),
		c.newViewCommand(),
		c.newSearchCommand(),
		c.newSearchAllCommand(),
		c.newNextIDCommand(),
		c.newInsertCommand(),
		c.newUpdateCommand(),
		c.newDeleteCommand(),
		c.newReportsCommand(),
		c.newReportCommand(),
	)
	return rootCmd
}

func (c *cli) newTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables in the current schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := c.app.engine.Tables(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tables))
			for _, t := range tables {
				key := ""
				if table, ok := c.app.registry.Table(t); ok {
					key = joinIdentifiers(table)
				}
				rows = append(rows, []string{t, key})
			}
			return renderRows(cmd.OutOrStdout(), c.format, []string{"table", "key"}, rows)
		},
	}
}

func (c *cli) newDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show columns, key and references of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, ok := c.app.registry.Table(args[0])
			if !ok {
				var err error
				if table, err = c.app.engine.Describe(cmd.Context(), args[0]); err != nil {
					return err
				}
			}

			keys := map[string]bool{}
			for _, k := range table.KeyColumns() {
				keys[k.String()] = true
			}
			rows := make([][]string, 0, len(table.Columns))
			for _, col := range table.Columns {
				detail := ""
				switch k := col.Kind.(type) {
				case schema.Enum:
					detail = strings.Join(k.Values, "|")
				case schema.Ref:
					detail = k.Table.String() + "." + k.Column.String()
				}
				rows = append(rows, []string{
					col.Name.String(),
					string(col.Kind.Category()),
					yesNo(keys[col.Name.String()]),
					yesNo(col.Optional),
					detail,
				})
			}
			if _, prefix, ok := table.Prefix(); ok {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "id prefix: %s\n", prefix)
			}
			return renderRows(cmd.OutOrStdout(), c.format, []string{"column", "type", "key", "optional", "detail"}, rows)
		},
	}
}

func (c *cli) newViewCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "view <table>",
		Short: "Show the first rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := c.app.engine.View(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return c.renderRecords(cmd.OutOrStdout(), args[0], records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of rows (default from config)")
	return cmd
}

func (c *cli) newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <table> <term>",
		Short: "Search a table by text, number or date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := c.app.engine.Search(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return c.renderRecords(cmd.OutOrStdout(), args[0], records)
		},
	}
}

func (c *cli) newSearchAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search-all <term>",
		Short: "Search every table and show the tables with matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := c.app.engine.SearchAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if c.format == formatJSON {
				return renderJSON(w, results)
			}
			if len(results) == 0 {
				_, _ = fmt.Fprintln(w, "no matches")
				return nil
			}

			tables := make([]string, 0, len(results))
			for t := range results {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				_, _ = fmt.Fprintf(w, "== %s ==\n", t)
				if err := c.renderRecords(w, t, results[t]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (c *cli) newNextIDCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next-id <table>",
		Short: "Show the next generated id of a table with an id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, ok := c.app.registry.Table(args[0])
			if !ok {
				return errors.Wrapf(rdb.ErrUnknownTable, "table [%s]", args[0])
			}
			key, prefix, ok := table.Prefix()
			if !ok {
				return errors.Wrapf(rdb.ErrNoPrefix, "table [%s]", args[0])
			}
			id, err := c.app.engine.NextID(cmd.Context(), table.Name.String(), key.String(), prefix)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func (c *cli) newInsertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <table> <column=value>...",
		Short: "Insert a record, generating the key when the table has an id prefix",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			record, err := c.app.parseAssignments(table, args[1:])
			if err != nil {
				return err
			}

			if t, ok := c.app.registry.Table(table); ok {
				if key, _, ok := t.Prefix(); ok {
					if _, given := record[key.String()]; !given {
						id, err := c.app.engine.InsertWithNextID(cmd.Context(), table, record)
						if err != nil {
							return err
						}
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "inserted %s\n", id)
						return nil
					}
				}
			}

			if err := c.app.engine.Insert(cmd.Context(), table, record); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "inserted")
			return nil
		},
	}
}

func (c *cli) newUpdateCommand() *cobra.Command {
	var keys []string
	cmd := &cobra.Command{
		Use:   "update <table> --key <column=value>... <column=value>...",
		Short: "Update the record identified by its key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.app.parseAssignments(args[0], keys)
			if err != nil {
				return err
			}
			updates, err := c.app.parseAssignments(args[0], args[1:])
			if err != nil {
				return err
			}
			n, err := c.app.engine.Update(cmd.Context(), args[0], key, updates)
			if err != nil {
				return err
			}
			return reportAffected(cmd.OutOrStdout(), "updated", n)
		},
	}
	cmd.Flags().StringArrayVarP(&keys, "key", "k", nil, "key column=value, repeat for composite keys")
	return cmd
}

func (c *cli) newDeleteCommand() *cobra.Command {
	var keys []string
	cmd := &cobra.Command{
		Use:   "delete <table> --key <column=value>...",
		Short: "Delete the record identified by its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.app.parseAssignments(args[0], keys)
			if err != nil {
				return err
			}
			n, err := c.app.engine.Delete(cmd.Context(), args[0], key)
			if errors.Is(err, rdb.ErrReferenced) {
				return errors.Errorf("cannot delete from %s: the record is referenced by other records", args[0])
			}
			if err != nil {
				return err
			}
			return reportAffected(cmd.OutOrStdout(), "deleted", n)
		},
	}
	cmd.Flags().StringArrayVarP(&keys, "key", "k", nil, "key column=value, repeat for composite keys")
	return cmd
}

func (c *cli) newReportsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List the configured reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.app.reports == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no reports configured")
				return nil
			}
			var rows [][]string
			for _, def := range c.app.reports.List() {
				rows = append(rows, []string{def.Name, def.Label, strings.Join(def.Params, ", "), def.Description})
			}
			return renderRows(cmd.OutOrStdout(), c.format, []string{"name", "label", "params", "description"}, rows)
		},
	}
}

func (c *cli) newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <name> [args...]",
		Short: "Run a configured report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.reports == nil {
				return errors.New("no reports configured")
			}
			params := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				params = append(params, a)
			}
			records, err := c.app.reports.Run(cmd.Context(), args[0], params...)
			if err != nil {
				return err
			}
			return c.renderRecords(cmd.OutOrStdout(), "", records)
		},
	}
}

func (c *cli) renderRecords(w io.Writer, table string, records []rdb.Record) error {
	return renderRecords(w, c.format, c.app.columnsOf(table, records), records)
}

// reportAffected 0 行受影响时提示没有匹配的记录
func reportAffected(w io.Writer, verb string, n int64) error {
	if n == 0 {
		_, _ = fmt.Fprintf(w, "no matching record, nothing %s\n", verb)
		return nil
	}
	_, _ = fmt.Fprintf(w, "%s %d row(s)\n", verb, n)
	return nil
}

func joinIdentifiers(t *schema.Table) string {
	names := make([]string, 0, len(t.KeyColumns()))
	for _, k := range t.KeyColumns() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
