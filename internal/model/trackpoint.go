// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// AltitudeSentinel は元データで「高度不明」を表す値。
const AltitudeSentinel = -777

// Altitude は高度（整数）を表す。不明な高度は値を持たない。
type Altitude struct {
	value int
	known bool
}

// KnownAltitude は値を持つAltitudeを返す。
func KnownAltitude(v int) Altitude {
	return Altitude{value: v, known: true}
}

// UnknownAltitude は値を持たないAltitudeを返す。
func UnknownAltitude() Altitude {
	return Altitude{}
}

// AltitudeFromSource は元データの高度値を最近接の整数に丸める。
// 丸めは偶数丸め（元データ生成側と同じ規則）。センチネル値は不明として扱う。
func AltitudeFromSource(raw float64) Altitude {
	rounded := int(math.RoundToEven(raw))
	if rounded == AltitudeSentinel {
		return UnknownAltitude()
	}
	return KnownAltitude(rounded)
}

// Value は高度と、値を持つかどうかを返す。
func (a Altitude) Value() (int, bool) {
	return a.value, a.known
}

// Known は高度が値を持つかどうかを返す。
func (a Altitude) Known() bool {
	return a.known
}

// String はログ出力用の表現。
func (a Altitude) String() string {
	if !a.known {
		return "unknown"
	}
	return fmt.Sprintf("%d", a.value)
}

// TrackPoint は軌跡の1サンプルを表す。
// Seqは元ファイル内の順序（0始まり）で、同一時刻のサンプルの並びを保持する。
type TrackPoint struct {
	UserID     string `validate:"required"`
	ActivityID string `validate:"required"`
	Seq        int    `validate:"gte=0"`
	Lat        float64
	Lon        float64
	Altitude   Altitude
	DateDays   float64
	DateTime   time.Time `validate:"required"`
}

// NewTrackPoint は必須項目を検証してTrackPointを生成する。
func NewTrackPoint(userID, activityID string, seq int, lat, lon float64, alt Altitude, dateDays float64, dateTime time.Time) (*TrackPoint, error) {
	tp := &TrackPoint{
		UserID:     userID,
		ActivityID: activityID,
		Seq:        seq,
		Lat:        lat,
		Lon:        lon,
		Altitude:   alt,
		DateDays:   dateDays,
		DateTime:   dateTime,
	}
	if err := validateRecord(tp); err != nil {
		return nil, fmt.Errorf("invalid trackpoint: %w", err)
	}
	return tp, nil
}

// TrackPointFilter はトラックポイントのストリーム取得条件。
// ActivityIDsが空の場合は全アクティビティ、Withinがnilの場合は全範囲を対象とする。
type TrackPointFilter struct {
	ActivityIDs []string
	Within      *orb.Bound
}
