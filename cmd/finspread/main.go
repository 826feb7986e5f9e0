// finspread is the batch CLI: point it at a statement file or a
// directory and it registers, processes, and exports everything in one
// pass, without the daemon.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/export"
	"finspread/internal/extract"
	"finspread/internal/ingest"
	"finspread/internal/labeler"
	"finspread/internal/labeler/openai"
	"finspread/internal/pipeline"
	"finspread/internal/repository"
	"finspread/internal/taxonomy"
	"finspread/internal/validate"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:           "finspread",
		Short:         "Financial statement extraction pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(processCmd(logger), exportCmd(logger), healthCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func processCmd(logger *slog.Logger) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "process <file-or-directory>",
		Short: "Ingest and process documents, exporting one workbook per run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := common.LoadConfig()

			db, err := repository.Open(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer repository.Close(db, logger)

			docsRepo := repository.NewDocumentRepository(db, logger)
			runsRepo := repository.NewRunRepository(db, logger)
			bundlesRepo := repository.NewBundleRepository(db, logger)

			orch, err := buildOrchestrator(cfg, docsRepo, runsRepo, bundlesRepo, logger)
			if err != nil {
				return err
			}

			ingestor := ingest.NewIngestor(docsRepo, logger)
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}

			var results []ingest.IngestionResult
			if info.IsDir() {
				var stats ingest.DirStats
				results, stats, err = ingestor.IngestDirectory(ctx, path, true)
				if err != nil {
					return err
				}
				logger.Info("ingestion complete",
					"scanned", stats.Scanned, "matched", stats.Matched,
					"succeeded", stats.Succeeded, "deduplicated", stats.Deduplicated,
					"failed", stats.Failed)
			} else {
				res, err := ingestor.IngestPath(ctx, path)
				if err != nil {
					return err
				}
				results = append(results, res)
			}

			if outDir == "" {
				outDir = filepath.Dir(path)
			}
			exporter := export.NewService(bundlesRepo, logger)

			processed, failures := 0, 0
			for _, res := range results {
				if res.Err != "" {
					failures++
					continue
				}
				docID, err := uuid.Parse(res.DocumentID)
				if err != nil {
					failures++
					continue
				}
				run, err := orch.Run(ctx, docID)
				if err != nil {
					logger.Error("run failed", "document_id", docID, "error", err)
					failures++
					continue
				}
				if run.Status == constants.RunStatusFailed || run.Status == constants.RunStatusCancelled {
					logger.Warn("document not processed", "document_id", docID,
						"status", run.Status, "errors", strings.Join(run.Errors, "; "))
					failures++
					continue
				}
				processed++

				raw, err := exporter.ExportRunXLSX(ctx, run.ID)
				if err != nil {
					logger.Error("export failed", "run_id", run.ID, "error", err)
					continue
				}
				target := filepath.Join(outDir, exportName(res.SourcePath, run.ID))
				if err := os.WriteFile(target, raw, 0o644); err != nil {
					logger.Error("write failed", "path", target, "error", err)
					continue
				}
				fmt.Printf("%s -> %s (%s, score %.0f)\n",
					filepath.Base(res.SourcePath), target, run.Status, run.Report.QualityScore)
			}

			fmt.Printf("Processed: %d, failures: %d\n", processed, failures)
			if failures > 0 {
				return fmt.Errorf("%d document(s) failed", failures)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory for workbooks (defaults next to the input)")
	return cmd
}

func exportCmd(logger *slog.Logger) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a completed run as an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id: %w", err)
			}
			ctx := cmd.Context()
			cfg := common.LoadConfig()

			db, err := repository.Open(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer repository.Close(db, logger)

			exporter := export.NewService(repository.NewBundleRepository(db, logger), logger)
			raw, err := exporter.ExportRunXLSX(ctx, runID)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = runID.String() + ".xlsx"
			}
			if err := os.WriteFile(outPath, raw, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file path")
	return cmd
}

func healthCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := common.LoadConfig()
			db, err := repository.Open(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer repository.Close(db, logger)
			if err := repository.HealthCheck(cmd.Context(), db, 5*time.Second, logger); err != nil {
				return err
			}
			fmt.Println("database OK")
			return nil
		},
	}
}

// buildOrchestrator mirrors the daemon's wiring, degrading to the rule
// labeler alone when no API key is configured.
func buildOrchestrator(
	cfg *common.Config,
	docs repository.DocumentRepository,
	runs repository.RunRepository,
	bundles repository.BundleRepository,
	logger *slog.Logger,
) (*pipeline.Orchestrator, error) {
	runner := extract.NewExecRunner()
	pdfText := extract.NewPDFTextExtractor(cfg.Extract.ArtifactCacheDir, logger)
	ocrText := extract.NewOCRExtractor(cfg.Extract.OCRCommand, runner, logger)
	stream := extract.NewStreamTableExtractor(logger)

	text := map[constants.FileType][]extract.TextExtractor{
		constants.FileTypePDF:   {pdfText, ocrText},
		constants.FileTypeXLSX:  {extract.NewXLSXExtractor(logger)},
		constants.FileTypeCSV:   {extract.NewCSVExtractor(logger)},
		constants.FileTypeImage: {ocrText},
	}
	pdfTables := []extract.TableExtractor{}
	if cfg.Extract.TableCommand != "" {
		pdfTables = append(pdfTables, extract.NewCommandTableExtractor(cfg.Extract.TableCommand, runner, logger))
	}
	pdfTables = append(pdfTables, stream)
	tables := map[constants.FileType][]extract.TableExtractor{
		constants.FileTypePDF:   pdfTables,
		constants.FileTypeImage: {stream},
	}

	var labelers []labeler.Labeler
	if cfg.Labeler.APIKey != "" || os.Getenv("OPENAI_API_KEY") != "" {
		labelers = append(labelers, openai.NewClient(openai.Config{
			APIKey:      cfg.Labeler.APIKey,
			BaseURL:     cfg.Labeler.BaseURL,
			Model:       cfg.Labeler.Model,
			Temperature: cfg.Labeler.Temperature,
			Timeout:     cfg.Labeler.Timeout,
		}, logger))
	} else {
		logger.Warn("no labeler API key configured, using rule labeler only")
	}
	labelers = append(labelers, labeler.NewRuleLabeler(logger))

	mapper, err := taxonomy.NewMapper(cfg.Pipeline.TaxonomyFloor)
	if err != nil {
		return nil, err
	}

	return pipeline.NewOrchestrator(pipeline.Deps{
		Config:    cfg.Pipeline,
		Documents: docs,
		Runs:      runs,
		Bundles:   bundles,
		Text:      text,
		Tables:    tables,
		Labelers:  labelers,
		Mapper:    mapper,
		Validator: validate.NewValidator(cfg.Pipeline, logger),
		Logger:    logger,
	}), nil
}

func exportName(sourcePath string, runID uuid.UUID) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s-%s.xlsx", base, runID.String()[:8])
}
