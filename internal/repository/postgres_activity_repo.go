package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/geotrail/internal/model"
)

// PostgresActivityRepo はPostgreSQLを使用したActivityRepositoryの実装。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

// Insert はアクティビティを同一トランザクションで登録し、登録されたIDを返す。
func (r *PostgresActivityRepo) Insert(ctx context.Context, activities []*model.Activity) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(activities))
	for _, a := range activities {
		var id string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO activities (id, user_id, transportation_mode, start_date_time, end_date_time)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			a.ID, a.UserID, nullableMode(a.TransportationMode), a.StartDateTime, a.EndDateTime,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert activity: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, nil
}

// Count はアクティビティ数を返す。
func (r *PostgresActivityRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return n, nil
}

// List は条件に一致するアクティビティを開始時刻昇順で返す。
func (r *PostgresActivityRepo) List(ctx context.Context, filter model.ActivityFilter) ([]*model.Activity, error) {
	query, args := buildActivityListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var activities []*model.Activity
	for rows.Next() {
		var (
			a    model.Activity
			mode sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &mode, &a.StartDateTime, &a.EndDateTime); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if mode.Valid {
			a.TransportationMode = model.ModeOf(mode.String)
		}
		activities = append(activities, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return activities, nil
}

// buildActivityListQuery はフィルタのゼロ値でない項目だけをWHERE句に含める。
func buildActivityListQuery(filter model.ActivityFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		conds = append(conds, fmt.Sprintf("EXTRACT(YEAR FROM start_date_time)::int = $%d", len(args)))
	}
	if filter.Mode != "" {
		args = append(args, filter.Mode)
		conds = append(conds, fmt.Sprintf("transportation_mode = $%d", len(args)))
	}

	query := `SELECT id, user_id, transportation_mode, start_date_time, end_date_time FROM activities`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_date_time, id"
	return query, args
}

// ModeHistogram はモード別のアクティビティ数を件数降順で返す。
func (r *PostgresActivityRepo) ModeHistogram(ctx context.Context) ([]ModeCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT transportation_mode, COUNT(*) AS n
		 FROM activities
		 WHERE transportation_mode IS NOT NULL
		 GROUP BY transportation_mode
		 ORDER BY n DESC, transportation_mode`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build mode histogram: %w", err)
	}
	defer rows.Close()

	var result []ModeCount
	for rows.Next() {
		var c ModeCount
		if err := rows.Scan(&c.Mode, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan mode count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// CountByYear は開始時刻の年ごとのアクティビティ数を年昇順で返す。
func (r *PostgresActivityRepo) CountByYear(ctx context.Context) ([]YearCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT EXTRACT(YEAR FROM start_date_time)::int AS y, COUNT(*)
		 FROM activities
		 GROUP BY y
		 ORDER BY y`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities by year: %w", err)
	}
	defer rows.Close()

	var result []YearCount
	for rows.Next() {
		var c YearCount
		if err := rows.Scan(&c.Year, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan year count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// SecondsByYear は開始時刻の年ごとに (終了 - 開始) の秒数を合計して返す。
func (r *PostgresActivityRepo) SecondsByYear(ctx context.Context) ([]YearSeconds, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT EXTRACT(YEAR FROM start_date_time)::int AS y,
		        COALESCE(SUM(EXTRACT(EPOCH FROM (end_date_time - start_date_time))), 0)::bigint
		 FROM activities
		 GROUP BY y
		 ORDER BY y`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum durations by year: %w", err)
	}
	defer rows.Close()

	var result []YearSeconds
	for rows.Next() {
		var s YearSeconds
		if err := rows.Scan(&s.Year, &s.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan year seconds: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func nullableMode(mode *string) sql.NullString {
	if mode == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *mode, Valid: true}
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
