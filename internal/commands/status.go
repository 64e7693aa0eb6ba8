package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/fundscout/scout/internal/app"
	"github.com/fundscout/scout/internal/lock"
	"github.com/fundscout/scout/internal/output"
	"github.com/fundscout/scout/internal/store"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scout installation status and system overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Run database connectivity check (SELECT 1)")

	return cmd
}

func runStatus(check bool) error {
	type dbInfo struct {
		Path      string `json:"path"`
		OK        bool   `json:"ok"`
		SizeBytes *int64 `json:"size_bytes,omitempty"`
		Error     string `json:"error,omitempty"`
	}

	type locksInfo struct {
		Dir   string      `json:"dir"`
		Locks []lock.Info `json:"locks,omitempty"`
		Error string      `json:"error,omitempty"`
	}

	type resp struct {
		DB         dbInfo              `json:"db"`
		Locks      locksInfo           `json:"locks"`
		Settings   app.LockSettings    `json:"lock_settings"`
		Counts     *store.StatusCounts `json:"counts,omitempty"`
		QueryOK    *bool               `json:"query_ok,omitempty"`
		QueryError string              `json:"query_error,omitempty"`
		Hint       string              `json:"hint,omitempty"`
	}

	dbPath, err := app.GetDBPath()
	if err != nil {
		return cmdErr(err)
	}

	result := resp{
		DB:       dbInfo{Path: dbPath},
		Settings: app.EffectiveLockSettings(),
	}

	// Lock files are reported even when the database is unavailable.
	if locks, lockErr := newLockManager(); lockErr != nil {
		result.Locks.Error = lockErr.Error()
	} else if dir, dirErr := app.GetLocksDir(); dirErr == nil {
		result.Locks.Dir = dir
		if infos, scanErr := locks.ScanLocks(); scanErr != nil {
			result.Locks.Error = scanErr.Error()
		} else {
			result.Locks.Locks = infos
		}
	}

	db, err := store.OpenDB(dbPath)
	if err != nil {
		result.DB.OK = false
		result.DB.Error = err.Error()
		if check {
			qOK := false
			result.QueryOK = &qOK
			result.QueryError = "db not available"
			result.Hint = "If this is running in a sandboxed environment, set db_path to a writable location or use --db-path."
		}
		return output.PrintSuccess(result)
	}

	result.DB.OK = true
	defer func() { _ = db.Close() }()

	if stat, err := os.Stat(dbPath); err == nil {
		size := stat.Size()
		result.DB.SizeBytes = &size
	}

	if counts, err := store.GetStatusCounts(db); err == nil {
		result.Counts = counts
	}

	if check {
		var one int
		qErr := db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one)
		qOK := qErr == nil
		result.QueryOK = &qOK
		if !qOK {
			result.QueryError = qErr.Error()
		}
	}

	return output.PrintSuccess(result)
}
