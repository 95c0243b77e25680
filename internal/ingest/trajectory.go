package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/geotrail/internal/dataset"
	"github.com/hitoshi/geotrail/internal/model"
)

// 軌跡ファイルの列位置: lat lon reserved altitude date_days date time
const (
	colLat = iota
	colLon
	colReserved
	colAltitude
	colDateDays
	colDate
	colTime
	trajectoryColumns
)

// sample は軌跡ファイルの1行を解析した値。
type sample struct {
	lat      float64
	lon      float64
	altitude model.Altitude
	dateDays float64
	dateTime time.Time
}

// parseSamples は全行を解析する。1行でも不正があればMalformedRowErrorを返し、何も返さない。
func parseSamples(path string, rows [][]string) ([]sample, error) {
	if len(rows) == 0 {
		return nil, &model.MalformedRowError{
			Path:  path,
			Line:  dataset.TrajectoryHeaderLines + 1,
			Field: "row",
			Err:   errors.New("trajectory has no samples"),
		}
	}

	samples := make([]sample, len(rows))
	for i, row := range rows {
		s, field, err := parseSample(row)
		if err != nil {
			return nil, &model.MalformedRowError{
				Path:  path,
				Line:  dataset.TrajectoryHeaderLines + i + 1,
				Field: field,
				Err:   err,
			}
		}
		samples[i] = s
	}
	return samples, nil
}

func parseSample(row []string) (sample, string, error) {
	if len(row) < trajectoryColumns {
		return sample{}, "row", fmt.Errorf("expected %d fields, got %d", trajectoryColumns, len(row))
	}

	var (
		s   sample
		err error
	)
	if s.lat, err = strconv.ParseFloat(row[colLat], 64); err != nil {
		return sample{}, "lat", err
	}
	if s.lon, err = strconv.ParseFloat(row[colLon], 64); err != nil {
		return sample{}, "lon", err
	}
	altitude, err := strconv.ParseFloat(row[colAltitude], 64)
	if err != nil {
		return sample{}, "altitude", err
	}
	s.altitude = model.AltitudeFromSource(altitude)
	if s.dateDays, err = strconv.ParseFloat(row[colDateDays], 64); err != nil {
		return sample{}, "date_days", err
	}
	if s.dateTime, err = dataset.ParseTimestamp(row[colDate], row[colTime]); err != nil {
		return sample{}, "date_time", err
	}
	return s, "", nil
}

// reconcile はラベルを照合し、一致した場合のみモードを返す。
// 開始キーが一致し、かつラベルの終了時刻が計算した終了時刻と完全に一致する必要がある。
func reconcile(labels dataset.LabelIndex, key string, end time.Time) *string {
	label, ok := labels.Lookup(key)
	if !ok {
		return nil
	}
	labelEnd, err := label.End()
	if err != nil || !labelEnd.Equal(end) {
		return nil
	}
	return model.ModeOf(label.Mode)
}
