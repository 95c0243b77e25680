// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/geotrail/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Insert はユーザーを登録し、登録されたIDを入力順に返す。
	Insert(ctx context.Context, users []*model.User) ([]string, error)

	// UpdateActivities はユーザーのアクティビティ要約一覧を置き換える。
	UpdateActivities(ctx context.Context, id string, activities []model.ActivitySummary) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// List は全ユーザーをID昇順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// Count はユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// TopByActivityCount はアクティビティ要約の件数が多い順にユーザーを返す。
	// 同数の場合はID昇順。
	TopByActivityCount(ctx context.Context, limit int) ([]UserActivityCount, error)

	// ListByMode は指定モードのアクティビティ要約を1件以上持つユーザーIDを返す。
	ListByMode(ctx context.Context, mode string) ([]string, error)

	// ModeCountsForLabeled はラベルを持つユーザーについて (user, mode) ごとの件数を返す。
	// モード未設定の要約は含めない。並びはユーザーID昇順、件数降順、モード名昇順。
	ModeCountsForLabeled(ctx context.Context) ([]UserModeCount, error)
}

// ActivityRepository はアクティビティデータの永続化インターフェース。
type ActivityRepository interface {
	// Insert はアクティビティを登録し、登録されたIDを入力順に返す。
	Insert(ctx context.Context, activities []*model.Activity) ([]string, error)

	// Count はアクティビティ数を返す。
	Count(ctx context.Context) (int, error)

	// List は条件に一致するアクティビティを開始時刻昇順で返す。
	List(ctx context.Context, filter model.ActivityFilter) ([]*model.Activity, error)

	// ModeHistogram はモード別のアクティビティ数を返す。モード未設定は含めない。
	ModeHistogram(ctx context.Context) ([]ModeCount, error)

	// CountByYear は開始時刻の年ごとのアクティビティ数を年昇順で返す。
	CountByYear(ctx context.Context) ([]YearCount, error)

	// SecondsByYear は開始時刻の年ごとに (終了 - 開始) の秒数を合計して返す。
	SecondsByYear(ctx context.Context) ([]YearSeconds, error)
}

// TrackPointRepository はトラックポイントデータの永続化インターフェース。
type TrackPointRepository interface {
	// InsertBatch は1アクティビティ分のトラックポイントを一括登録し、登録件数を返す。
	InsertBatch(ctx context.Context, points []*model.TrackPoint) (int, error)

	// Count はトラックポイント数を返す。
	Count(ctx context.Context) (int, error)

	// Stream は条件に一致するトラックポイントを (activity_id, date_time, seq) 昇順で
	// 1件ずつfnに渡す。fnがエラーを返した場合はそのエラーで中断する。
	Stream(ctx context.Context, filter model.TrackPointFilter, fn func(*model.TrackPoint) error) error
}

// UserActivityCount はユーザーごとのアクティビティ件数。
type UserActivityCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"activities"`
}

// UserModeCount はユーザーとモードの組ごとの件数。
type UserModeCount struct {
	UserID string `json:"user_id"`
	Mode   string `json:"transportation_mode"`
	Count  int    `json:"count"`
}

// ModeCount はモードごとの件数。
type ModeCount struct {
	Mode  string `json:"transportation_mode"`
	Count int    `json:"count"`
}

// YearCount は年ごとの件数。
type YearCount struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

// YearSeconds は年ごとの合計秒数。
type YearSeconds struct {
	Year    int   `json:"year"`
	Seconds int64 `json:"seconds"`
}
