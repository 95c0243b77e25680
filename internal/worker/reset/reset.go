// Package reset は取り込み前にストアを空にするジョブを提供する。
// 管理対象の全テーブルを1文のTRUNCATEで空にするため、途中状態は残らない。
package reset

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ResetJob は管理対象テーブルの全データを削除するジョブ。
// 冪等: 既に空の場合でもエラーにならない。
type ResetJob struct {
	db     Executor
	logger *slog.Logger
	Tables []string // 削除対象テーブル（子テーブルから順に指定）
}

// NewResetJob は新しいResetJobを生成する。
func NewResetJob(db Executor, logger *slog.Logger, tables []string) *ResetJob {
	return &ResetJob{
		db:     db,
		logger: logger,
		Tables: tables,
	}
}

// Run は対象テーブルをTRUNCATEし、連番もリセットする。
func (j *ResetJob) Run(ctx context.Context) error {
	if len(j.Tables) == 0 {
		return fmt.Errorf("リセット対象のテーブルが指定されていません")
	}

	start := time.Now()

	query := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", strings.Join(j.Tables, ", "))
	if _, err := j.db.ExecContext(ctx, query); err != nil {
		j.logger.Error("ストアのリセットに失敗しました",
			slog.String("error", err.Error()),
			slog.Any("tables", j.Tables),
		)
		return fmt.Errorf("ストアのリセットに失敗: %w", err)
	}

	j.logger.Info("ストアのリセットが完了しました",
		slog.Any("tables", j.Tables),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
