// Package docvault is an encrypted document store for construction-company
// back-office records: invoices, receipts, delivery notes and contracts.
// Documents are encrypted at rest, every access lands in an audit trail, and
// a retention scheduler purges soft-deleted documents once their grace
// period runs out.
//
// The module is a library. A typical embedding wires it up in this order:
//
//	cfg := config.Load()
//	db, err := database.NewPostgres(ctx, cfg.Database, logger)
//	err = migration.EnsureMigrated(ctx, db, logger)
//
//	engine, err := encryption.New(encryption.Config{
//		Key:        cfg.Vault.Key,
//		BaseDir:    cfg.Vault.BaseDir,
//		Production: cfg.Vault.Production,
//	})
//
//	repo := postgres.NewDocumentPostgres(db)
//	recorder := audit.NewRecorder(repo, logger)
//	limiter := ratelimit.New(ratelimit.Config{
//		Window:    cfg.RateLimit.Window,
//		MaxEvents: cfg.RateLimit.MaxEvents,
//	})
//
//	svc := service.NewDocumentService(service.Config{
//		MaxUploadBytes:    cfg.Upload.MaxUploadBytes,
//		AllowedExtensions: cfg.Upload.AllowedExtensions,
//		GraceDays:         cfg.Retention.GraceDays,
//	}, repo, engine, limiter, recorder, ocr.PDFExtractor{}, nil, logger)
//
//	registry := status.NewRegistry()
//	sched, err := retention.New(retention.Config{
//		PurgeCron: cfg.Retention.PurgeCron,
//		GraceDays: cfg.Retention.GraceDays,
//	}, repo, engine, nil, registry, logger)
//	sched.Start(ctx)
//	defer sched.Stop()
//
// The storage package adds an optional MinIO replica for ciphertext
// containers, and telemetry.Init wires OTLP trace export.
package docvault
