// Package cli implements the ledgermatch command line surface.
package cli

import (
	"database/sql"
	"fmt"

	"github.com/google/subcommands"

	"github.com/jask/ledgermatch/internal/config"
	"github.com/jask/ledgermatch/internal/database"
	"github.com/jask/ledgermatch/internal/database/repository"
	"github.com/jask/ledgermatch/internal/service"
)

// Register wires every subcommand into the commander.
func Register(c *subcommands.Commander, cfg config.Config) {
	c.Register(&ingestCmd{cfg: cfg}, "ledger")
	c.Register(&reconcileCmd{cfg: cfg}, "reconciliation")
	c.Register(&reviewCmd{cfg: cfg}, "reconciliation")
	c.Register(&auditCmd{cfg: cfg}, "audit")
	c.Register(&unlinkCmd{cfg: cfg}, "audit")
	c.Register(&purgeCmd{cfg: cfg}, "ledger")
	c.Register(&seedCmd{cfg: cfg}, "ledger")
}

// app bundles the opened store and services for one command invocation.
type app struct {
	cfg config.Config
	db  *sql.DB

	records   *repository.RecordRepo
	decisions *repository.DecisionRepo
	audit     *repository.AuditRepo
	runs      *repository.RunRepo

	normalizer  *service.Normalizer
	ingester    *service.IngestService
	coordinator *service.Coordinator
	review      *service.ReviewService
	maintenance *service.MaintenanceService
}

func openApp(cfg config.Config) (*app, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := database.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &app{cfg: cfg, db: db}
	a.records = repository.NewRecordRepo(db)
	a.decisions = repository.NewDecisionRepo(db)
	a.audit = repository.NewAuditRepo(db)
	a.runs = repository.NewRunRepo(db)

	a.normalizer = &service.Normalizer{
		VendorSuffixes: cfg.Matching.VendorSuffixes,
		VendorAliases:  cfg.Matching.VendorAliases,
	}
	a.ingester = &service.IngestService{Records: a.records, Normalizer: a.normalizer}
	a.coordinator = &service.Coordinator{
		DB:        db,
		Records:   a.records,
		Decisions: a.decisions,
		Audit:     a.audit,
		Runs:      a.runs,
		Classifier: &service.SequenceClassifier{
			NSFMarkers:  cfg.Sequence.NSFMarkers,
			NSFSpanDays: cfg.Sequence.NSFSpanDays,
		},
		Actor:      cfg.Reconcile.Actor,
		Workers:    cfg.Reconcile.Workers,
		MaxRetries: uint(cfg.Reconcile.MaxRetries),
		SequenceWindowDays: func(kind repository.SourceKind) int {
			return cfg.SequenceWindow(string(kind))
		},
	}
	a.review = &service.ReviewService{
		Records:   a.records,
		Decisions: a.decisions,
		TopN:      cfg.Reconcile.ReviewTopN,
	}
	a.maintenance = &service.MaintenanceService{
		DB: db, Records: a.records, Decisions: a.decisions,
		Audit: a.audit, Actor: cfg.Reconcile.Actor,
	}
	return a, nil
}

func (a *app) Close() error { return a.db.Close() }
