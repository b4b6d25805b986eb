package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/fetcher"
	"github.com/sells-group/contract-validator/internal/model"
	"github.com/sells-group/contract-validator/internal/pipeline"
)

var (
	ingestContractID string
	ingestManifest   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <contract|invoice> <path|url>",
	Short: "Extract documents into stored contracts or invoices",
	Long: "Reads a local file, directory or ZIP bundle, an http(s) URL, or an ftp:// file or directory " +
		"(trailing slash), and extracts each document. Failures are recorded in the dead letter queue.\n\n" +
		"With --manifest, reads kind, source and optional contract ID per row from a .csv or .json file instead.",
	Args: func(cmd *cobra.Command, args []string) error {
		if ingestManifest != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(2)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := ingestJobs(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initPipeline(ctx, config.ModeIngest)
		if err != nil {
			return err
		}
		defer env.Close()

		resolver := initResolver()
		var results []ingestResult
		for _, job := range jobs {
			paths, err := resolver.Resolve(ctx, job.Source)
			if err != nil {
				results = append(results, ingestResult{File: job.Source, Err: eris.Wrap(err, "ingest")})
				continue
			}
			for _, path := range paths {
				results = append(results, ingestOne(cmd, env.Pipeline, job, path))
			}
		}
		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}
		formatIngestResults(os.Stdout, results)

		if n := countFailed(results); n > 0 {
			return eris.Errorf("ingest: %d of %d documents failed", n, len(results))
		}
		return nil
	},
}

// ingestJob is one source to resolve and ingest.
type ingestJob struct {
	Kind       model.DocumentKind
	Source     string
	ContractID string
}

// ingestJobs builds the work list from the positional arguments or the
// manifest.
func ingestJobs(args []string) ([]ingestJob, error) {
	if ingestManifest == "" {
		kind, ok := model.ParseDocumentKind(args[0])
		if !ok {
			return nil, eris.Errorf("ingest: unknown document kind %q (want contract or invoice)", args[0])
		}
		return []ingestJob{{Kind: kind, Source: args[1], ContractID: ingestContractID}}, nil
	}

	entries, err := fetcher.ReadManifest(ingestManifest)
	if err != nil {
		return nil, eris.Wrap(err, "ingest")
	}
	jobs := make([]ingestJob, 0, len(entries))
	for i, e := range entries {
		kind, ok := model.ParseDocumentKind(e.Kind)
		if !ok {
			return nil, eris.Errorf("ingest: manifest entry %d: unknown document kind %q", i+1, e.Kind)
		}
		contractID := e.ContractID
		if contractID == "" {
			contractID = ingestContractID
		}
		jobs = append(jobs, ingestJob{Kind: kind, Source: e.Source, ContractID: contractID})
	}
	return jobs, nil
}

// ingestResult is one row of the ingest summary.
type ingestResult struct {
	File       string
	DocumentID string
	RecordID   string
	Vendor     string
	Items      int
	Err        error
}

func ingestOne(cmd *cobra.Command, p *pipeline.Pipeline, job ingestJob, path string) ingestResult {
	res := ingestResult{File: filepath.Base(path)}
	switch job.Kind {
	case model.DocumentContract:
		stored, err := p.IngestContract(cmd.Context(), path)
		if err != nil {
			res.Err = err
			break
		}
		res.DocumentID = stored.DocumentID
		res.RecordID = stored.Data.ContractID
		res.Vendor = stored.Data.VendorName
		res.Items = len(stored.Data.BillableItems)
	case model.DocumentInvoice:
		stored, err := p.IngestInvoice(cmd.Context(), path, job.ContractID)
		if err != nil {
			res.Err = err
			break
		}
		res.DocumentID = stored.DocumentID
		res.RecordID = stored.Data.InvoiceID
		res.Vendor = stored.Data.VendorName
		res.Items = len(stored.Data.LineItems)
	}
	if res.Err != nil {
		if pe, ok := pipeline.AsProcessingError(res.Err); ok {
			res.DocumentID = pe.DocumentID
		}
		zap.L().Error("ingest failed", zap.String("file", path), zap.Error(res.Err))
	}
	return res
}

func countFailed(results []ingestResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// formatIngestResults writes a tabular ingest summary to w.
func formatIngestResults(out io.Writer, results []ingestResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tDOCUMENT\tRECORD\tVENDOR\tITEMS\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t--------\t------\t------\t-----\t------")
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "failed"
			if pe, ok := pipeline.AsProcessingError(r.Err); ok {
				status = fmt.Sprintf("failed (%s, %s)", pe.Stage, pe.Category)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.File, truncateID(r.DocumentID), r.RecordID, r.Vendor, r.Items, status)
	}
	_ = w.Flush()
}

func init() {
	ingestCmd.Flags().StringVar(&ingestContractID, "contract", "", "contract ID to link ingested invoices to")
	ingestCmd.Flags().StringVar(&ingestManifest, "manifest", "", "read sources from a .csv or .json manifest")
	rootCmd.AddCommand(ingestCmd)
}
