// Package model はドメインモデルを定義する。
package model

import "fmt"

// ActivitySummary はUserに保持するアクティビティの要約。
// TransportationModeはラベル照合に成功した場合のみ設定される。
type ActivitySummary struct {
	ActivityID         string  `json:"activity_id"`
	TransportationMode *string `json:"transportation_mode"`
}

// User はデータセットの1ユーザーディレクトリを表す。
// IDはディレクトリ名（自然キー）。
type User struct {
	ID         string `validate:"required"`
	HasLabel   bool
	Activities []ActivitySummary
}

// NewUser はアクティビティ未登録のUserを生成する。
// Activitiesは全軌跡ファイルの取り込み後に1回だけ書き戻される。
func NewUser(id string, hasLabel bool) (*User, error) {
	u := &User{
		ID:         id,
		HasLabel:   hasLabel,
		Activities: []ActivitySummary{},
	}
	if err := validateRecord(u); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}
	return u, nil
}

// ModeOf はモード文字列へのポインタを返す。空文字列の場合はnilを返す。
func ModeOf(mode string) *string {
	if mode == "" {
		return nil
	}
	return &mode
}
