package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mitostat/internal/blob"
	"mitostat/internal/core"
	"mitostat/internal/ingest"
	"mitostat/internal/report"
)

func newReferenceCommand(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "reference",
		Short: "Register named reference sequences from a FASTA file",
		Long: `Register each record of a FASTA file as a named reference sequence.
The record ID becomes the reference name, e.g. EVA or ANDREWS.

Example usage:
	mitostat reference --fasta refs.fa`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return errors.New("--fasta is required")
			}
			feed, err := ingest.OpenReferences(path)
			if err != nil {
				return err
			}
			defer feed.Close()
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				stats, err := ingest.NewLoader(svc, ingest.WithLogger(a.logger)).LoadReferences(cmd.Context(), feed)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "registered %d references, existing %d, skipped %d\n", stats.Loaded, stats.Duplicates, stats.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "fasta", "", "reference FASTA file (plain or gzipped)")
	return cmd
}

func newIngestCommand(a *app) *cobra.Command {
	var csvPath, fastaPath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load sample sequences from a CSV or FASTA feed",
		Long: `Load sample sequences with their region into the store, one record per
transaction.

The CSV feed has the columns version,region,fasta. In a FASTA feed the region
is read from the "isolate <REGION>" tag of each description.

Example usage:
	mitostat ingest --csv result.csv
	mitostat ingest --fasta samples.fa.gz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				feed ingest.Feed
				err  error
			)
			switch {
			case csvPath != "" && fastaPath != "":
				return errors.New("--csv and --fasta are mutually exclusive")
			case csvPath != "":
				feed, err = ingest.OpenCSV(csvPath)
			case fastaPath != "":
				feed, err = ingest.OpenFasta(fastaPath)
			default:
				return errors.New("one of --csv or --fasta is required")
			}
			if err != nil {
				return err
			}
			defer feed.Close()
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				loader := ingest.NewLoader(svc,
					ingest.WithLogger(a.logger),
					ingest.WithSourceBaseURL(a.cfg.Ingest.SourceBaseURL),
				)
				stats, err := loader.LoadSamples(cmd.Context(), feed)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "loaded %d samples, duplicates %d, skipped %d, warnings %d\n", stats.Loaded, stats.Duplicates, stats.Skipped, stats.Warnings)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV feed (plain or gzipped)")
	cmd.Flags().StringVar(&fastaPath, "fasta", "", "FASTA feed (plain or gzipped)")
	cmd.Flags().String("source-base-url", "", "URL prefix for sample identifiers")
	return cmd
}

func newReportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the distance distribution workbook",
		Long: `Write one sheet per region with the distance distributions against every
reference and the regional wild type, the pairwise distribution and the
polymorphism counts. Without --regions the sheets are ALL followed by every
stored region. Regions that cannot be analysed are skipped.

Example usage:
	mitostat report --regions ALL,IF --output reports/if.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withService(ctx, func(svc *core.Service) error {
				known, err := svc.Regions(ctx)
				if err != nil {
					return err
				}
				wb := report.NewWorkbook()
				defer wb.Close()
				builder := report.NewBuilder(svc, wb,
					report.WithDistRange(a.cfg.Report.DistRange),
					report.WithReferences(a.cfg.Report.References...),
				)
				sum, err := report.Batch(ctx, builder, report.Scopes(a.cfg.Report.Regions, known), a.logger)
				if err != nil {
					return err
				}
				for _, s := range sum.Skipped {
					fmt.Fprintf(a.stdout, "skipped %s: %v\n", s.Region, s.Err)
				}
				if len(sum.Sheets) == 0 {
					return errors.New("no region produced a sheet")
				}
				store, err := blob.Open(ctx, a.cfg.Blob)
				if err != nil {
					return fmt.Errorf("open blob store: %w", err)
				}
				published, err := report.NewPublisher(store, "").Publish(ctx, wb, a.cfg.Report.Output)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "wrote %d sheets to %s\n", len(sum.Sheets), published.URL)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.String("regions", "", "comma separated sheet list, e.g. ALL,IF,CU")
	f.String("output", "", "artifact key for the workbook (default reports/<uuid>.xlsx)")
	f.Int("dist-range", 0, "number of distance columns (default 20)")
	f.String("references", "", "comma separated reference names (default EVA,ANDREWS)")
	return cmd
}

func newRegionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the stored regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(svc *core.Service) error {
				names, err := svc.Regions(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(a.stdout, name)
				}
				return nil
			})
		},
	}
}

func newReportsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List, fetch or delete published workbooks",
		Long: `Manage the workbooks stored in the configured artifact store.

Example usage:
	mitostat reports list --prefix reports/
	mitostat reports fetch reports/if.xlsx --to if.xlsx
	mitostat reports delete reports/if.xlsx`,
	}
	cmd.AddCommand(newReportsListCommand(a), newReportsFetchCommand(a), newReportsDeleteCommand(a))
	return cmd
}

func (a *app) publisher(cmd *cobra.Command) (*report.Publisher, error) {
	store, err := blob.Open(cmd.Context(), a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return report.NewPublisher(store, ""), nil
}

func newReportsListCommand(a *app) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, err := a.publisher(cmd)
			if err != nil {
				return err
			}
			infos, err := pub.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(a.stdout, "%s\t%d\t%s\t%s\n", info.Key, info.Size, info.LastModified.UTC().Format(time.RFC3339), info.Metadata["sheets"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only list keys starting with this prefix")
	return cmd
}

func newReportsFetchCommand(a *app) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "fetch KEY",
		Short: "Copy a stored workbook to a local file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			pub, err := a.publisher(cmd)
			if err != nil {
				return err
			}
			var w io.Writer = a.stdout
			if to != "" {
				f, err := os.Create(to)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = cerr
					}
				}()
				w = f
			}
			info, err := pub.Fetch(cmd.Context(), args[0], w)
			if err != nil {
				return err
			}
			if to != "" {
				fmt.Fprintf(a.stdout, "fetched %s (%d bytes) to %s\n", info.Key, info.Size, to)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "destination file (default stdout)")
	return cmd
}

func newReportsDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a stored workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := a.publisher(cmd)
			if err != nil {
				return err
			}
			ok, err := pub.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], blob.ErrNotFound)
			}
			fmt.Fprintf(a.stdout, "deleted %s\n", args[0])
			return nil
		},
	}
}
