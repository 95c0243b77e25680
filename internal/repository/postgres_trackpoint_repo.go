package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/geotrail/internal/model"
	"github.com/lib/pq"
)

// PostgresTrackPointRepo はPostgreSQLを使用したTrackPointRepositoryの実装。
type PostgresTrackPointRepo struct {
	db *sql.DB
}

// NewPostgresTrackPointRepo はPostgresTrackPointRepoを生成する。
func NewPostgresTrackPointRepo(db *sql.DB) *PostgresTrackPointRepo {
	return &PostgresTrackPointRepo{db: db}
}

// InsertBatch はCOPYプロトコルでトラックポイントを一括登録する。
// 1アクティビティ分を1トランザクションで登録し、途中失敗時は何も残さない。
func (r *PostgresTrackPointRepo) InsertBatch(ctx context.Context, points []*model.TrackPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("trackpoints",
		"user_id", "activity_id", "seq", "lat", "lon", "altitude", "date_days", "date_time",
	))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, tp := range points {
		var altitude any
		if v, ok := tp.Altitude.Value(); ok {
			altitude = v
		}
		if _, err := stmt.ExecContext(ctx,
			tp.UserID, tp.ActivityID, tp.Seq, tp.Lat, tp.Lon, altitude, tp.DateDays, tp.DateTime,
		); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy trackpoint: %w", err)
		}
	}

	// 引数なしのExecでバッファをフラッシュする
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(points), nil
}

// Count はトラックポイント数を返す。
func (r *PostgresTrackPointRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trackpoints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trackpoints: %w", err)
	}
	return n, nil
}

// Stream は条件に一致するトラックポイントを (activity_id, date_time, seq) 昇順でfnに渡す。
// 逐次走査系の集計はこの並びを前提とする。
func (r *PostgresTrackPointRepo) Stream(ctx context.Context, filter model.TrackPointFilter, fn func(*model.TrackPoint) error) error {
	query, args := buildTrackPointStreamQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query trackpoints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tp       model.TrackPoint
			altitude sql.NullInt64
		)
		if err := rows.Scan(
			&tp.UserID, &tp.ActivityID, &tp.Seq, &tp.Lat, &tp.Lon, &altitude, &tp.DateDays, &tp.DateTime,
		); err != nil {
			return fmt.Errorf("failed to scan trackpoint: %w", err)
		}
		if altitude.Valid {
			tp.Altitude = model.KnownAltitude(int(altitude.Int64))
		}
		if err := fn(&tp); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate trackpoints: %w", err)
	}
	return nil
}

func buildTrackPointStreamQuery(filter model.TrackPointFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(filter.ActivityIDs) > 0 {
		args = append(args, pq.Array(filter.ActivityIDs))
		conds = append(conds, fmt.Sprintf("activity_id = ANY($%d::uuid[])", len(args)))
	}
	if b := filter.Within; b != nil {
		args = append(args, b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
		n := len(args)
		conds = append(conds, fmt.Sprintf("lat BETWEEN $%d AND $%d AND lon BETWEEN $%d AND $%d", n-3, n-2, n-1, n))
	}

	query := `SELECT user_id, activity_id, seq, lat, lon, altitude, date_days, date_time FROM trackpoints`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY activity_id, date_time, seq"
	return query, args
}

// compile-time interface check
var _ TrackPointRepository = (*PostgresTrackPointRepo)(nil)
