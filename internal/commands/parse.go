package commands

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/stmtimport/internal/importer"
	"github.com/cleared-dev/stmtimport/internal/model"
	"github.com/cleared-dev/stmtimport/internal/ofx"
)

// parseFlags are the per-run overrides of the import config section.
type parseFlags struct {
	format    string
	encoding  string
	strict    bool
	dateOrder string
}

func (f *parseFlags) register(cmd *cobra.Command) {
	formats := importer.DefaultRegistry().Formats()
	cmd.Flags().StringVar(&f.format, "format", "", "statement format: "+strings.Join(formats, ", ")+" (default: detect)")
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "override the declared character encoding")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "fail on the first bad transaction")
	cmd.Flags().StringVar(&f.dateOrder, "date-order", "", "ambiguous QIF dates: auto, us or eu")
}

func (f *parseFlags) options(cmd *cobra.Command, e *env) (model.ParseOptions, error) {
	opts := e.cfg.Import.ParseOptions()
	if f.format != "" {
		formats := importer.DefaultRegistry().Formats()
		if !slices.Contains(formats, strings.ToLower(f.format)) {
			return opts, fmt.Errorf("unknown format %q: want one of %s", f.format, strings.Join(formats, ", "))
		}
	}
	if f.encoding != "" {
		opts.Encoding = f.encoding
	}
	if cmd.Flags().Changed("strict") {
		opts.Strict = f.strict
	}
	if f.dateOrder != "" {
		switch order := model.DateOrder(f.dateOrder); order {
		case model.DateOrderAuto, model.DateOrderUS, model.DateOrderEU:
			opts.DateOrder = order
		default:
			return opts, fmt.Errorf("unknown date order %q: want auto, us or eu", f.dateOrder)
		}
	}
	return opts, nil
}

func newParseCommand(g *globalOptions) *cobra.Command {
	var flags parseFlags

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a statement and print its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := loadEnv(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			opts, err := flags.options(cmd, e)
			if err != nil {
				return err
			}

			st, err := e.pipeline(nil).ParseFile(ctx, args[0], flags.format, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printStatement(out, args[0], st)
			printTransactions(out, st.Transactions, false)
			printDiagnostics(cmd.ErrOrStderr(), st.Diagnostics)
			fmt.Fprintf(out, "%d transactions, %d diagnostics\n", len(st.Transactions), len(st.Diagnostics))
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func newConvertCommand() *cobra.Command {
	var output string
	var encoding string

	cmd := &cobra.Command{
		Use:   "convert <ofx1-file>",
		Short: "Rewrite an OFX 1.x SGML file as OFX 2 XML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			conv, err := ofx.ConvertV1ToV2(raw, model.ParseOptions{Encoding: encoding})
			if err != nil {
				return fmt.Errorf("converting %s: %w", args[0], err)
			}

			if output == "" || output == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), conv.XML)
				return err
			}
			if err := os.WriteFile(output, []byte(conv.XML+"\n"), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "converted %s (%s) to %s\n", args[0], conv.Encoding, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&encoding, "encoding", "", "override the declared character encoding")

	return cmd
}
