// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxTrackPointsPerActivity は1アクティビティに許容するサンプル数の上限。
// これを超える軌跡ファイルはアクティビティとして登録されない。
const MaxTrackPointsPerActivity = 2500

// Activity は1つの軌跡ファイルから作られる移動記録を表す。
// 作成後は変更されない。
type Activity struct {
	ID                 string    `validate:"required"`
	UserID             string    `validate:"required"`
	TransportationMode *string
	StartDateTime      time.Time `validate:"required"`
	EndDateTime        time.Time `validate:"required,gtefield=StartDateTime"`
}

// NewActivity は新しいIDを採番してActivityを生成する。
// 終了時刻が開始時刻より前の場合はエラーを返す。
func NewActivity(userID string, mode *string, start, end time.Time) (*Activity, error) {
	a := &Activity{
		ID:                 uuid.New().String(),
		UserID:             userID,
		TransportationMode: mode,
		StartDateTime:      start,
		EndDateTime:        end,
	}
	if err := validateRecord(a); err != nil {
		return nil, fmt.Errorf("invalid activity: %w", err)
	}
	return a, nil
}

// Summary はUserに書き戻す要約を返す。
func (a *Activity) Summary() ActivitySummary {
	return ActivitySummary{
		ActivityID:         a.ID,
		TransportationMode: a.TransportationMode,
	}
}

// Duration は開始から終了までの経過時間。
func (a *Activity) Duration() time.Duration {
	return a.EndDateTime.Sub(a.StartDateTime)
}

// ActivityFilter はアクティビティ検索の条件。ゼロ値の項目は条件に含めない。
type ActivityFilter struct {
	UserID string
	Year   int
	Mode   string
}
