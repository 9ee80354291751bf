package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"legal-researcher/internal/config"
	"legal-researcher/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// CaseRun is one row of the run ledger: the outcome of a single case run.
type CaseRun struct {
	bun.BaseModel `bun:"table:case_runs,alias:cr"`

	ID           int64          `bun:"id,pk,autoincrement"`
	RunID        string         `bun:"run_id,notnull,unique"`
	CaseID       string         `bun:"case_id,notnull"`
	Status       string         `bun:"status,notnull"`
	FailedStage  string         `bun:"failed_stage"`
	ErrorKind    string         `bun:"error_kind"`
	ErrorMessage string         `bun:"error_message"`
	Notices      []string       `bun:"notices,array"`
	ArtifactPath string         `bun:"artifact_path"`
	Report       *models.Report `bun:"report,type:jsonb"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is not configured")
	}
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*CaseRun)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create case_runs: %w", err)
	}
	_, err = db.NewCreateIndex().Model((*CaseRun)(nil)).Index("case_runs_case_id_idx").IfNotExists().Column("case_id").Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to index case_runs: %w", err)
	}
	return nil
}

// NewCaseRun describes the outcome of running caseID. report is nil when the
// run failed; runID is used only in that case.
func NewCaseRun(caseID, runID string, report *models.Report, runErr error) *CaseRun {
	run := &CaseRun{CaseID: caseID, RunID: runID, Status: StatusSucceeded, Notices: []string{}}
	if report != nil {
		run.RunID = report.RunID
		run.Report = report
		if report.Notices != nil {
			run.Notices = report.Notices
		}
	}
	if runErr != nil {
		run.Status = StatusFailed
		run.ErrorKind = models.ErrorKind(runErr)
		run.ErrorMessage = runErr.Error()
		var stageErr *models.StageError
		if errors.As(runErr, &stageErr) {
			run.FailedStage = string(stageErr.Stage)
		}
	}
	return run
}

func RecordRun(ctx context.Context, db *bun.DB, run *CaseRun) error {
	if _, err := db.NewInsert().Model(run).Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first, optionally for one case.
func ListRuns(ctx context.Context, db *bun.DB, caseID string, limit int) ([]CaseRun, error) {
	var runs []CaseRun
	q := db.NewSelect().
		Model(&runs).
		ExcludeColumn("report").
		OrderExpr("created_at DESC, id DESC").
		Limit(limit)
	if caseID != "" {
		q = q.Where("case_id = ?", caseID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func DropRuns(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*CaseRun)(nil)).IfExists().Exec(ctx)
	return err
}
