// Package analytics はトラックポイント列の逐次走査集計と、
// 保存済みレコードに対するグループ化・ランキング集計を提供する。
package analytics

import (
	"cmp"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/hitoshi/geotrail/internal/model"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// MinInvalidGapMinutes は連続する2点の間隔がこの分数以上の場合に不正とみなす閾値。
const MinInvalidGapMinutes = 5

// Fold はトラックポイント列を1点ずつ受け取る集計器。
// 入力は (activity_id, date_time, seq) 昇順であることを前提とする。
// 並びが崩れた入力に対しては誤った結果を返す（検出はしない）。
type Fold interface {
	Add(tp *model.TrackPoint)
}

// Apply はソート済みのトラックポイント列を各Foldに順に流す。
func Apply(points []*model.TrackPoint, folds ...Fold) {
	for _, tp := range points {
		for _, f := range folds {
			f.Add(tp)
		}
	}
}

// SortTrackPoints はトラックポイントを (activity_id, date_time, seq) 昇順に並べ替える。
// ストレージが順序を保証しない場合、Foldに渡す前に呼び出すこと。
func SortTrackPoints(points []*model.TrackPoint) {
	slices.SortStableFunc(points, func(a, b *model.TrackPoint) int {
		if c := strings.Compare(a.ActivityID, b.ActivityID); c != 0 {
			return c
		}
		if c := a.DateTime.Compare(b.DateTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// pairScan は同一アクティビティ内で連続する2点を取り出す状態。
type pairScan struct {
	activityID string
	prev       *model.TrackPoint
}

// next はtpの直前の点を返す。アクティビティが切り替わった直後はnilを返す。
func (s *pairScan) next(tp *model.TrackPoint) *model.TrackPoint {
	var prev *model.TrackPoint
	if s.prev != nil && s.activityID == tp.ActivityID {
		prev = s.prev
	}
	s.activityID = tp.ActivityID
	s.prev = tp
	return prev
}

// UserTotal はユーザーごとの集計値。
type UserTotal struct {
	UserID string `json:"user_id"`
	Total  int    `json:"total"`
}

// AltitudeGainFold はユーザーごとの累積上昇高度を求める。
// 同一アクティビティ内の連続する2点で、両方の高度が既知かつ上昇している場合のみ差分を加算する。
type AltitudeGainFold struct {
	scan   pairScan
	totals map[string]int
}

// NewAltitudeGainFold はAltitudeGainFoldを生成する。
func NewAltitudeGainFold() *AltitudeGainFold {
	return &AltitudeGainFold{totals: make(map[string]int)}
}

// Add はFoldインターフェースを実装する。
func (f *AltitudeGainFold) Add(tp *model.TrackPoint) {
	prev := f.scan.next(tp)
	if prev == nil {
		return
	}
	before, ok := prev.Altitude.Value()
	if !ok {
		return
	}
	after, ok := tp.Altitude.Value()
	if !ok {
		return
	}
	if after > before {
		f.totals[tp.UserID] += after - before
	}
}

// Totals はユーザーごとの累積上昇高度を返す。上昇が一度もないユーザーは含まれない。
func (f *AltitudeGainFold) Totals() map[string]int {
	return f.totals
}

// Top は累積上昇高度の大きい順に上位n件を返す。同値はユーザーID昇順。
func (f *AltitudeGainFold) Top(n int) []UserTotal {
	return rankTotals(f.totals, n)
}

// TimeGapFold は同一アクティビティ内で間隔が閾値以上空いた連続2点を数える。
// 1アクティビティに複数の空きがあれば、その数だけ加算する。
type TimeGapFold struct {
	scan       pairScan
	minMinutes int
	counts     map[string]int
}

// NewTimeGapFold は閾値MinInvalidGapMinutesのTimeGapFoldを生成する。
func NewTimeGapFold() *TimeGapFold {
	return &TimeGapFold{minMinutes: MinInvalidGapMinutes, counts: make(map[string]int)}
}

// Add はFoldインターフェースを実装する。
func (f *TimeGapFold) Add(tp *model.TrackPoint) {
	prev := f.scan.next(tp)
	if prev == nil {
		return
	}
	// 分単位に切り捨ててから比較する
	minutes := int(math.Floor(tp.DateTime.Sub(prev.DateTime).Seconds() / 60))
	if minutes >= f.minMinutes {
		f.counts[tp.UserID]++
	}
}

// Counts はユーザーごとの不正ペア数を返す。
func (f *TimeGapFold) Counts() map[string]int {
	return f.counts
}

// Users は不正ペアを1件以上持つ全ユーザーをユーザーID昇順で返す。
func (f *TimeGapFold) Users() []UserTotal {
	result := make([]UserTotal, 0, len(f.counts))
	for id, n := range f.counts {
		result = append(result, UserTotal{UserID: id, Total: n})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})
	return result
}

// DistanceFold は同一アクティビティ内の連続2点間の大円距離（km）を合計する。
type DistanceFold struct {
	scan   pairScan
	meters float64
}

// NewDistanceFold はDistanceFoldを生成する。
func NewDistanceFold() *DistanceFold {
	return &DistanceFold{}
}

// Add はFoldインターフェースを実装する。
func (f *DistanceFold) Add(tp *model.TrackPoint) {
	prev := f.scan.next(tp)
	if prev == nil {
		return
	}
	f.meters += geo.DistanceHaversine(pointOf(prev), pointOf(tp))
}

// Kilometers は合計距離をkmで返す（丸めなし）。
func (f *DistanceFold) Kilometers() float64 {
	return f.meters / 1000
}

// pointOf はorb.Point（経度, 緯度の順）に変換する。
func pointOf(tp *model.TrackPoint) orb.Point {
	return orb.Point{tp.Lon, tp.Lat}
}

// Round3 は小数点以下3桁に丸める。
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// rankTotals は値の降順、同値はユーザーID昇順で並べ、上位n件を返す。
// nが0以下の場合は全件を返す。
func rankTotals(totals map[string]int, n int) []UserTotal {
	result := make([]UserTotal, 0, len(totals))
	for id, v := range totals {
		result = append(result, UserTotal{UserID: id, Total: v})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Total != result[j].Total {
			return result[i].Total > result[j].Total
		}
		return result[i].UserID < result[j].UserID
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}
