package reset

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeResult struct{}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return 0, nil }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	execCalled bool
	query      string
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	return &fakeResult{}, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

var managed = []string{"trackpoints", "activities", "users"}

func TestNewResetJob_ReturnsNonNil(t *testing.T) {
	var buf bytes.Buffer
	job := NewResetJob(&mockExecutor{}, newTestLogger(&buf), managed)

	if job == nil {
		t.Fatal("NewResetJob は nil を返してはならない")
	}
	if len(job.Tables) != 3 {
		t.Errorf("Tables = %v, want 3 tables", job.Tables)
	}
}

func TestResetJob_Run_TruncatesAllTablesInOneStatement(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{}
	job := NewResetJob(mock, newTestLogger(&buf), managed)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if !mock.execCalled {
		t.Fatal("ExecContext が呼び出されなかった")
	}

	want := "TRUNCATE TABLE trackpoints, activities, users RESTART IDENTITY"
	if mock.query != want {
		t.Errorf("query = %q, want %q", mock.query, want)
	}
}

func TestResetJob_Run_LogsTables(t *testing.T) {
	var buf bytes.Buffer
	job := NewResetJob(&mockExecutor{}, newTestLogger(&buf), managed)

	_ = job.Run(context.Background())

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("ログがJSONではない: %v (%s)", err, buf.String())
	}
	tables, ok := entry["tables"].([]interface{})
	if !ok || len(tables) != 3 {
		t.Errorf("ログに tables が記録されていない: %s", buf.String())
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Errorf("ログに duration_ms が記録されていない: %s", buf.String())
	}
}

func TestResetJob_Run_ReturnsErrorOnExecFailure(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("permission denied")
	job := NewResetJob(&mockExecutor{err: boom}, newTestLogger(&buf), managed)

	err := job.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestResetJob_Run_NoTables(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{}
	job := NewResetJob(mock, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("テーブル未指定でエラーにならなかった")
	}
	if mock.execCalled {
		t.Error("テーブル未指定で ExecContext が呼び出された")
	}
}
