// Package export はトラックポイントを列指向フォーマットで書き出す。
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/geotrail/internal/model"
	"github.com/hitoshi/geotrail/internal/repository"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// writeParallelism はParquetライターの並列度。
const writeParallelism = 4

// TrackPointRow はParquetファイルの1行。高度が不明な行はaltitudeがnullになる。
type TrackPointRow struct {
	UserID     string  `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ActivityID string  `parquet:"name=activity_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Seq        int64   `parquet:"name=seq, type=INT64"`
	Lat        float64 `parquet:"name=lat, type=DOUBLE"`
	Lon        float64 `parquet:"name=lon, type=DOUBLE"`
	Altitude   *int32  `parquet:"name=altitude, type=INT32, repetitiontype=OPTIONAL"`
	DateDays   float64 `parquet:"name=date_days, type=DOUBLE"`
	DateTime   int64   `parquet:"name=date_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// RowOf はトラックポイントをParquetの行に変換する。
func RowOf(tp *model.TrackPoint) TrackPointRow {
	row := TrackPointRow{
		UserID:     tp.UserID,
		ActivityID: tp.ActivityID,
		Seq:        int64(tp.Seq),
		Lat:        tp.Lat,
		Lon:        tp.Lon,
		DateDays:   tp.DateDays,
		DateTime:   tp.DateTime.UnixMilli(),
	}
	if v, ok := tp.Altitude.Value(); ok {
		alt := int32(v)
		row.Altitude = &alt
	}
	return row
}

// Exporter はストアのトラックポイントをParquetに書き出す。
type Exporter struct {
	trackPointRepo repository.TrackPointRepository
	logger         *slog.Logger
}

// NewExporter はExporterの新しいインスタンスを生成する。
func NewExporter(trackPointRepo repository.TrackPointRepository, logger *slog.Logger) *Exporter {
	return &Exporter{
		trackPointRepo: trackPointRepo,
		logger:         logger,
	}
}

// ExportFile は全トラックポイントをpathのParquetファイルに書き出し、行数を返す。
func (e *Exporter) ExportFile(ctx context.Context, path string) (int, error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := e.Export(ctx, fw, model.TrackPointFilter{})
	if err != nil {
		_ = fw.Close()
		return n, err
	}
	if err := fw.Close(); err != nil {
		return n, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return n, nil
}

// Export は条件に一致するトラックポイントを (activity_id, date_time, seq) 順にfwへ書き出す。
// fwのCloseは呼び出し元が行う。
func (e *Exporter) Export(ctx context.Context, fw source.ParquetFile, filter model.TrackPointFilter) (int, error) {
	start := time.Now()

	pw, err := writer.NewParquetWriter(fw, new(TrackPointRow), writeParallelism)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := 0
	err = e.trackPointRepo.Stream(ctx, filter, func(tp *model.TrackPoint) error {
		if err := pw.Write(RowOf(tp)); err != nil {
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		_ = pw.WriteStop()
		return rows, err
	}
	if err := pw.WriteStop(); err != nil {
		return rows, fmt.Errorf("failed to finish parquet file: %w", err)
	}

	e.logger.Info("trackpoints exported",
		slog.Int("rows", rows),
		slog.Duration("elapsed", time.Since(start)),
	)
	return rows, nil
}
