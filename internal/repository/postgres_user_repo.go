package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/hitoshi/geotrail/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したUserRepositoryの実装。
// アクティビティ要約はJSONB配列としてusers.activitiesに保持する。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Insert はユーザーを同一トランザクションで登録し、登録されたIDを返す。
func (r *PostgresUserRepo) Insert(ctx context.Context, users []*model.User) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(users))
	for _, u := range users {
		activities, err := marshalSummaries(u.Activities)
		if err != nil {
			return nil, err
		}

		var id string
		err = tx.QueryRowContext(ctx,
			`INSERT INTO users (id, has_label, activities)
			 VALUES ($1, $2, $3::jsonb)
			 RETURNING id`,
			u.ID, u.HasLabel, activities,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert user %s: %w", u.ID, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, nil
}

// UpdateActivities はユーザーのアクティビティ要約一覧を置き換える。
func (r *PostgresUserRepo) UpdateActivities(ctx context.Context, id string, activities []model.ActivitySummary) error {
	data, err := marshalSummaries(activities)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET activities = $2::jsonb WHERE id = $1`,
		id, data,
	)
	if err != nil {
		return fmt.Errorf("failed to update user activities: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var (
		user       model.User
		activities []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, has_label, activities FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.HasLabel, &activities)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	if user.Activities, err = unmarshalSummaries(activities); err != nil {
		return nil, err
	}
	return &user, nil
}

// List は全ユーザーをID昇順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, has_label, activities FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var (
			user       model.User
			activities []byte
		)
		if err := rows.Scan(&user.ID, &user.HasLabel, &activities); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if user.Activities, err = unmarshalSummaries(activities); err != nil {
			return nil, err
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// Count はユーザー数を返す。
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// TopByActivityCount はアクティビティ要約の件数が多い順にユーザーを返す。
// 件数はusers.activitiesの配列長（アクティビティ表との結合はしない）。
func (r *PostgresUserRepo) TopByActivityCount(ctx context.Context, limit int) ([]UserActivityCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, jsonb_array_length(activities) AS n
		 FROM users
		 ORDER BY n DESC, id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rank users by activity count: %w", err)
	}
	defer rows.Close()

	var result []UserActivityCount
	for rows.Next() {
		var c UserActivityCount
		if err := rows.Scan(&c.UserID, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan user activity count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ListByMode は指定モードのアクティビティ要約を1件以上持つユーザーIDを返す。
func (r *PostgresUserRepo) ListByMode(ctx context.Context, mode string) ([]string, error) {
	pattern, err := json.Marshal([]map[string]string{{"transportation_mode": mode}})
	if err != nil {
		return nil, fmt.Errorf("failed to build mode pattern: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM users WHERE activities @> $1::jsonb ORDER BY id`,
		string(pattern),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by mode: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ModeCountsForLabeled はラベルを持つユーザーについて (user, mode) ごとの件数を返す。
func (r *PostgresUserRepo) ModeCountsForLabeled(ctx context.Context) ([]UserModeCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, a->>'transportation_mode' AS mode, COUNT(*) AS n
		 FROM users u
		 CROSS JOIN LATERAL jsonb_array_elements(u.activities) AS a
		 WHERE u.has_label
		   AND a->>'transportation_mode' IS NOT NULL
		 GROUP BY u.id, mode
		 ORDER BY u.id, n DESC, mode`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count modes per user: %w", err)
	}
	defer rows.Close()

	var result []UserModeCount
	for rows.Next() {
		var c UserModeCount
		if err := rows.Scan(&c.UserID, &c.Mode, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan user mode count: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// marshalSummaries はJSONBパラメータ用の文字列を返す。
// lib/pqは[]byteをbyteaとして送るため文字列で渡す。
func marshalSummaries(activities []model.ActivitySummary) (string, error) {
	if activities == nil {
		activities = []model.ActivitySummary{}
	}
	data, err := json.Marshal(activities)
	if err != nil {
		return "", fmt.Errorf("failed to marshal activity summaries: %w", err)
	}
	return string(data), nil
}

func unmarshalSummaries(data []byte) ([]model.ActivitySummary, error) {
	activities := []model.ActivitySummary{}
	if len(data) == 0 {
		return activities, nil
	}
	if err := json.Unmarshal(data, &activities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity summaries: %w", err)
	}
	return activities, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
