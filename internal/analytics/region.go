package analytics

import (
	"math"

	"github.com/paulmach/orb"
)

// ForbiddenCity は既定の地点クエリの座標（故宮）。
var ForbiddenCity = orb.Point{116.397, 39.916}

// DefaultRegionPrecision は地点比較で丸める小数点以下の桁数。
const DefaultRegionPrecision = 3

// Region は小数点以下Precision桁に丸めた座標が一致する範囲を表す。
type Region struct {
	Center    orb.Point
	Precision int
}

// NewRegion は緯度・経度から既定精度のRegionを生成する。
func NewRegion(lat, lon float64) Region {
	return Region{Center: orb.Point{lon, lat}, Precision: DefaultRegionPrecision}
}

// Contains は丸めた緯度・経度が中心と一致するかを返す。
// 丸めは偶数丸め。
func (r Region) Contains(lat, lon float64) bool {
	scale := r.scale()
	return math.RoundToEven(lat*scale) == math.RoundToEven(r.Center.Lat()*scale) &&
		math.RoundToEven(lon*scale) == math.RoundToEven(r.Center.Lon()*scale)
}

// Bound は丸めると中心に一致しうる座標をすべて含む矩形を返す。
// ストレージ側の絞り込みに使い、最終判定はContainsで行う。
func (r Region) Bound() orb.Bound {
	// 浮動小数点誤差で境界上の点を落とさないよう僅かに広げる
	half := 0.5/r.scale() + 1e-9
	return r.Center.Bound().Pad(half)
}

func (r Region) scale() float64 {
	return math.Pow10(r.Precision)
}
