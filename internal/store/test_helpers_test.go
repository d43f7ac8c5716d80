package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/testutil"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestReport creates a report with one failure, started at offset
// minutes after testutil.Epoch.
func createTestReport(runID, pair string, offset int) *executor.Report {
	start := testutil.Epoch.Add(time.Duration(offset) * time.Minute)
	return &executor.Report{
		RunID:         runID,
		Pair:          pair,
		EngineVersion: model.EngineVersion,
		StartedAt:     start,
		FinishedAt:    start.Add(3 * time.Second),
		Created:       2,
		Updated:       1,
		Ignored:       1,
		Failures: []executor.Failure{{
			EntityID:   "E3",
			ActionKind: model.ActionCreate,
			ErrorKind:  directory.KindTransient,
			Message:    "create: transient (id=E3): injected fault",
		}},
	}
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan index: %v", err)
		}
		names = append(names, name)
	}
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
