// Command aggquery translates a MongoDB aggregation pipeline, given as a
// JSON array of stage documents, into Oracle SQL plus bind values.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v2"

	"github.com/aggquery/aggquery"
	"github.com/aggquery/aggquery/dialect"
	"github.com/aggquery/aggquery/internal/oraclient"
)

// connectionConfig is the optional Oracle connection profile consulted only
// by the exec subcommand; translation itself never reads it.
type connectionConfig struct {
	DSN string `yaml:"dsn"`
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var (
		queryFlag    string
		collection   string
		dataColumn   string
		schema       string
		extended     bool
		inlineBinds  bool
		strict       bool
		connFilePath string
	)

	root := &cobra.Command{
		Use:           "aggquery",
		Short:         "translate a MongoDB aggregation pipeline into Oracle SQL/JSON",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	translateCmd := &cobra.Command{
		Use:   "translate",
		Short: "translate a pipeline and print the resulting SQL and binds",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readQuery(queryFlag)
			if err != nil {
				return err
			}
			stages, err := decodeStages(raw)
			if err != nil {
				return err
			}
			cfg := aggquery.Config{
				Collection: collection,
				DataColumn: dataColumn,
				Schema:     schema,
				Dialect:    dialectTag(extended),
			}
			t := aggquery.New(cfg)
			result, err := t.Translate(context.Background(), stages, aggquery.Options{
				InlineBinds: inlineBinds,
				Strict:      strict,
			})
			if err != nil {
				return err
			}
			fmt.Println(result.SQL)
			if len(result.Binds) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "binds:")
				for i, b := range result.Binds {
					fmt.Fprintf(cmd.OutOrStdout(), "  :%d = %v\n", i+1, b)
				}
			}
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "parse a pipeline and report validation errors without rendering SQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readQuery(queryFlag)
			if err != nil {
				return err
			}
			stages, err := decodeStages(raw)
			if err != nil {
				return err
			}
			cfg := aggquery.Config{Collection: collection, DataColumn: dataColumn, Schema: schema, Dialect: dialectTag(extended)}
			t := aggquery.New(cfg)
			if _, err := t.Translate(context.Background(), stages, aggquery.Options{Strict: strict}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	for _, c := range []*cobra.Command{translateCmd, validateCmd} {
		c.Flags().StringVar(&queryFlag, "query", "", "pipeline JSON array (reads stdin if omitted)")
		c.Flags().StringVar(&collection, "collection", "", "base collection/table name (required)")
		c.Flags().StringVar(&dataColumn, "data-column", "data", "JSON document column name")
		c.Flags().StringVar(&schema, "schema", "", "optional schema qualifier")
		c.Flags().BoolVar(&extended, "extended", false, "target the extended Oracle dialect (native SAMPLE)")
		c.Flags().BoolVar(&inlineBinds, "inline-binds", false, "inline literal values instead of emitting bind placeholders")
		c.Flags().BoolVar(&strict, "strict", false, "reject pipelines that exercise a known partial-support gap")
		_ = c.MarkFlagRequired("collection")
	}

	execCmd := &cobra.Command{
		Use:   "exec",
		Short: "translate a pipeline and run the resulting SQL against a real Oracle instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readQuery(queryFlag)
			if err != nil {
				return err
			}
			stages, err := decodeStages(raw)
			if err != nil {
				return err
			}
			cfg := aggquery.Config{
				Collection: collection,
				DataColumn: dataColumn,
				Schema:     schema,
				Dialect:    dialectTag(extended),
			}
			t := aggquery.New(cfg)
			result, err := t.Translate(context.Background(), stages, aggquery.Options{Strict: strict})
			if err != nil {
				return err
			}
			connCfg, err := loadConnectionConfig(connFilePath)
			if err != nil {
				return fmt.Errorf("loading connection config: %w", err)
			}
			client, err := oraclient.Open(connCfg.DSN)
			if err != nil {
				return fmt.Errorf("opening oracle connection: %w", err)
			}
			defer client.Close()
			return execResult(cmd, client, *result)
		},
	}
	execCmd.Flags().StringVar(&queryFlag, "query", "", "pipeline JSON array (reads stdin if omitted)")
	execCmd.Flags().StringVar(&collection, "collection", "", "base collection/table name (required)")
	execCmd.Flags().StringVar(&dataColumn, "data-column", "data", "JSON document column name")
	execCmd.Flags().StringVar(&schema, "schema", "", "optional schema qualifier")
	execCmd.Flags().BoolVar(&extended, "extended", false, "target the extended Oracle dialect (native SAMPLE)")
	execCmd.Flags().BoolVar(&strict, "strict", false, "reject pipelines that exercise a known partial-support gap")
	execCmd.Flags().StringVar(&connFilePath, "conn-file", "", "YAML file holding the Oracle connection DSN (required)")
	_ = execCmd.MarkFlagRequired("collection")
	_ = execCmd.MarkFlagRequired("conn-file")

	root.AddCommand(translateCmd, validateCmd, execCmd)
	return root
}

// execResult runs a translated query against client: a leading SELECT is
// run as a query and printed a row at a time, anything else (the
// INSERT/MERGE shapes produced by $out/$merge) is run as a statement and
// reports the affected row count.
func execResult(cmd *cobra.Command, client *oraclient.Client, result aggquery.Result) error {
	ctx := context.Background()
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(result.SQL)), "SELECT") {
		rows, err := client.Rows(ctx, result.SQL, result.Binds)
		if err != nil {
			return fmt.Errorf("executing query: %w", err)
		}
		defer rows.Close()
		return printRows(cmd.OutOrStdout(), rows)
	}
	n, err := client.Exec(ctx, result.SQL, result.Binds)
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d row(s) affected\n", n)
	return nil
}

// printRows prints a tab-separated header and one line per row, relying on
// database/sql's generic any-scan since the shape of a translated query's
// result set is not known ahead of time.
func printRows(w io.Writer, rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		parts := make([]string, len(cols))
		for i, v := range vals {
			parts[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(w, strings.Join(parts, "\t"))
	}
	return rows.Err()
}

func dialectTag(extended bool) dialect.Tag {
	if extended {
		return dialect.Extended
	}
	return dialect.Base
}

// readQuery returns queryFlag verbatim if set, otherwise reads all of
// stdin; it is an error for both to be empty.
func readQuery(queryFlag string) (string, error) {
	if queryFlag != "" {
		return queryFlag, nil
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return "", fmt.Errorf("no pipeline provided: pass -query or pipe JSON on stdin")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// decodeStages parses raw as a JSON array of stage documents, with a
// double-escaped-JSON fallback for shells that mangle quoting when a query
// is passed via -query.
func decodeStages(raw string) ([]bson.D, error) {
	stages, err := decodeStagesOnce(raw)
	if err == nil {
		return stages, nil
	}
	if strings.Contains(raw, `\"`) {
		unescaped := strings.ReplaceAll(raw, `\"`, `"`)
		unescaped = strings.ReplaceAll(unescaped, `\\`, `\`)
		if stages, err2 := decodeStagesOnce(unescaped); err2 == nil {
			return stages, nil
		}
	}
	return nil, fmt.Errorf("parsing pipeline JSON: %w", err)
}

func decodeStagesOnce(raw string) ([]bson.D, error) {
	var generic []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, err
	}
	stages := make([]bson.D, 0, len(generic))
	for _, r := range generic {
		var d bson.D
		if err := bson.UnmarshalExtJSON(r, false, &d); err != nil {
			return nil, err
		}
		stages = append(stages, d)
	}
	return stages, nil
}

func loadConnectionConfig(path string) (*connectionConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg connectionConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// exitCodeFor maps the exported error taxonomy to the process exit codes
// named in the spec's external interface: 0 success, 1 translation/runtime
// failure, 2 a structural validation error in the input itself.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *aggquery.ValidationError, *aggquery.UnsupportedOperatorError:
		fmt.Fprintln(os.Stderr, err)
		return 2
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}
