// finspreadd is the extraction daemon: it watches the intake directory,
// registers new documents, and drives them through the pipeline on a
// worker pool. A gRPC health endpoint reports liveness.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/extract"
	"finspread/internal/ingest"
	"finspread/internal/labeler"
	"finspread/internal/labeler/openai"
	"finspread/internal/pipeline"
	"finspread/internal/repository"
	"finspread/internal/taxonomy"
	"finspread/internal/validate"
	"finspread/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	if err := repository.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	docsRepo := repository.NewDocumentRepository(db, logger)
	runsRepo := repository.NewRunRepository(db, logger)
	bundlesRepo := repository.NewBundleRepository(db, logger)

	orch, err := buildOrchestrator(cfg, docsRepo, runsRepo, bundlesRepo, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	pool := worker.NewPool(orch, cfg.Pipeline, logger)
	pool.Start(ctx)

	// Replay runs stranded by a previous process before new intake.
	stranded, err := runsRepo.ListResumable(ctx, 100)
	if err != nil {
		logger.Error("failed to list stranded runs", "error", err)
		os.Exit(1)
	}
	if len(stranded) > 0 {
		logger.Info("resuming stranded runs", "count", len(stranded))
		pool.ResumeStranded(ctx, stranded)
	}

	// Intake watcher feeds the pool.
	ingestor := ingest.NewIngestor(docsRepo, logger)
	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Extract.DocumentRoot},
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Error("failed to start intake watcher", "root", cfg.Extract.DocumentRoot, "error", err)
		os.Exit(1)
	}
	go func() {
		for path := range events {
			res, err := ingestor.IngestPath(ctx, path)
			if err != nil {
				logger.Warn("intake failed", "path", path, "error", err)
				continue
			}
			if res.Deduplicated {
				logger.Info("intake deduplicated", "path", path, "document_id", res.DocumentID)
				continue
			}
			docID, err := uuid.Parse(res.DocumentID)
			if err != nil {
				logger.Error("bad document id", "id", res.DocumentID, "error", err)
				continue
			}
			if err := pool.Enqueue(ctx, worker.Job{DocumentID: docID}); err != nil {
				logger.Error("enqueue failed", "document_id", docID, "error", err)
			}
		}
	}()
	go func() {
		for err := range watchErrs {
			logger.Error("watcher error", "error", err)
		}
	}()

	// gRPC health endpoint.
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Info("finspreadd listening", "addr", cfg.Server.GRPCAddr, "intake", cfg.Extract.DocumentRoot)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}

// buildOrchestrator wires the per-file-type extraction chains, the
// labeler fallback chain, and the deterministic collaborators.
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
	gridXLSX := extract.NewXLSXExtractor(logger)
	gridCSV := extract.NewCSVExtractor(logger)
	stream := extract.NewStreamTableExtractor(logger)

	text := map[constants.FileType][]extract.TextExtractor{
		constants.FileTypePDF:   {pdfText, ocrText},
		constants.FileTypeXLSX:  {gridXLSX},
		constants.FileTypeCSV:   {gridCSV},
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

	labelers := []labeler.Labeler{
		openai.NewClient(openai.Config{
			APIKey:      cfg.Labeler.APIKey,
			BaseURL:     cfg.Labeler.BaseURL,
			Model:       cfg.Labeler.Model,
			Temperature: cfg.Labeler.Temperature,
			Timeout:     cfg.Labeler.Timeout,
		}, logger),
		labeler.NewRuleLabeler(logger),
	}

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
