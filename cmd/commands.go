package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"legal-researcher/internal/db"
	"legal-researcher/internal/glossary"
	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"
	"legal-researcher/internal/output"
	"legal-researcher/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [corpus-dir]",
	Short: "Build a new index snapshot from the statute corpus",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Corpus.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		a, err := newRetrievalApp(cfg)
		if err != nil {
			return err
		}
		res, err := a.ingestor().Ingest(cmd.Context(), dir)
		if err != nil {
			return err
		}
		helper.PrettyPrint(res)
		return nil
	},
}

var searchTopK int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the statute index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newRetrievalApp(cfg)
		if err != nil {
			return err
		}
		topK := searchTopK
		if topK == 0 {
			topK = cfg.RAG.TopK
		}
		hits, err := a.engine.Search(cmd.Context(), strings.Join(args, " "), topK)
		if err != nil {
			return err
		}
		helper.PrettyPrint(hits)
		return nil
	},
}

var (
	caseFile     string
	caseID       string
	jurisdiction string
	hints        []string
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run one case through the research pipeline and write its report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadCase(caseFile, caseID, jurisdiction, hints)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newResearchApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		report, runErr := a.pipeline.Run(ctx, in)
		arts, err := a.finish(ctx, in.CaseID, report, runErr)
		if err != nil {
			return err
		}
		for _, n := range report.Notices {
			log.Warn().Str("case_id", in.CaseID).Msg(n)
		}
		helper.PrettyPrint(arts)
		return nil
	},
}

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <case-dir>",
	Short: "Research every case file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cases, err := loadCaseDir(args[0], jurisdiction)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newResearchApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		results := a.pipeline.RunBatch(ctx, cases, batchConcurrency)
		failed := 0
		for _, r := range results {
			arts, err := a.finish(ctx, r.CaseID, r.Report, r.Err)
			if err != nil {
				failed++
				log.Error().Err(err).Str("case_id", r.CaseID).Str("kind", models.ErrorKind(err)).Msg("case failed")
				continue
			}
			log.Info().Str("case_id", r.CaseID).Str("report", arts.Markdown).Msg("case finished")
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cases failed", failed, len(results))
		}
		return nil
	},
}

var defineCmd = &cobra.Command{
	Use:   "define [term]",
	Short: "Look up a legal term or Latin maxim",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, term := range glossary.Terms() {
				fmt.Println(term)
			}
			return nil
		}
		term := strings.Join(args, " ")
		entry, ok := glossary.Lookup(term)
		if !ok {
			return fmt.Errorf("no definition found for %q", term)
		}
		fmt.Printf("%s: %s\n", entry.Term, entry.Definition)
		return nil
	},
}

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [case-id]",
	Short: "List recorded case runs from the ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.DSN == "" {
			return errors.New("the run ledger needs DATABASE_URL or database.dsn")
		}
		ledger, err := openLedger(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer ledger.Close()

		var filter string
		if len(args) == 1 {
			filter = args[0]
		}
		runs, err := db.ListRuns(cmd.Context(), ledger, filter, runsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tCASE\tRUN\tSTATUS\tSTAGE\tKIND\tNOTICES")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				r.CreatedAt.Format("2006-01-02 15:04:05"), r.CaseID, r.RunID, r.Status, r.FailedStage, r.ErrorKind, len(r.Notices))
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <case-id> <run-id>",
	Short: "Print the markdown of a written report",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.New(cmd.Context(), cfg.Output)
		if err != nil {
			return err
		}
		report, err := output.Read(cmd.Context(), store, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(report.Markdown)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of chunks to return (default rag.top_k)")

	researchCmd.Flags().StringVar(&caseFile, "case", "", "case file: plain text, or JSON with case_id and case_text")
	researchCmd.Flags().StringVar(&caseID, "case-id", "", "case identifier (default the file name)")
	researchCmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "jurisdiction, e.g. India")
	researchCmd.Flags().StringSliceVar(&hints, "hint", nil, "retrieval hint, repeatable")
	_ = researchCmd.MarkFlagRequired("case")

	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "cases in flight (default pipeline.batch_concurrency)")
	batchCmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "jurisdiction for text case files")

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
}
