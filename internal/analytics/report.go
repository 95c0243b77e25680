package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/geotrail/internal/model"
	"github.com/hitoshi/geotrail/internal/repository"
)

// ReportParams はレポートの各クエリに渡す固定パラメータ。
type ReportParams struct {
	Distance model.ActivityFilter
	TaxiMode string
	Region   Region
}

// RegionVisitors は地点クエリの結果。
type RegionVisitors struct {
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	Users []string `json:"users"`
}

// Report は全クエリの結果をまとめたもの。
type Report struct {
	Counts            *Counts                        `json:"counts"`
	AverageActivities float64                        `json:"average_activities_per_user"`
	TopUsers          []repository.UserActivityCount `json:"top_users"`
	ModeUsers         []string                       `json:"mode_users"`
	ModeHistogram     []repository.ModeCount         `json:"transportation_modes"`
	Years             *YearSummary                   `json:"years"`
	Distance          *DistanceResult                `json:"distance"`
	AltitudeGain      []UserTotal                    `json:"altitude_gain"`
	InvalidActivities []UserTotal                    `json:"invalid_activities"`
	Visitors          RegionVisitors                 `json:"region_visitors"`
	TopModes          []UserMode                     `json:"most_used_modes"`
}

// RunReport は11個のクエリを順に実行して1つのレポートにまとめる。
// データがないことによるNO_DATAは該当項目を空にして続行し、それ以外のエラーで中断する。
func (s *Service) RunReport(ctx context.Context, params ReportParams, logger *slog.Logger) (*Report, error) {
	r := &Report{}

	steps := []struct {
		name string
		run  func() error
	}{
		{"counts", func() (err error) { r.Counts, err = s.Counts(ctx); return }},
		{"average-activities", func() (err error) { r.AverageActivities, err = s.AverageActivities(ctx); return }},
		{"top-users", func() (err error) { r.TopUsers, err = s.TopUsers(ctx, TopN); return }},
		{"users-by-mode", func() (err error) { r.ModeUsers, err = s.UsersByMode(ctx, params.TaxiMode); return }},
		{"modes", func() (err error) { r.ModeHistogram, err = s.ModeHistogram(ctx); return }},
		{"busiest-year", func() (err error) { r.Years, err = s.BusiestYear(ctx); return }},
		{"distance", func() (err error) { r.Distance, err = s.Distance(ctx, params.Distance); return }},
		{"altitude-gain", func() (err error) { r.AltitudeGain, err = s.AltitudeGain(ctx, TopN); return }},
		{"invalid-activities", func() (err error) { r.InvalidActivities, err = s.InvalidActivities(ctx); return }},
		{"visitors", func() error {
			users, err := s.Visitors(ctx, params.Region)
			r.Visitors = RegionVisitors{Lat: params.Region.Center.Lat(), Lon: params.Region.Center.Lon(), Users: users}
			return err
		}},
		{"top-modes", func() (err error) { r.TopModes, err = s.TopModes(ctx); return }},
	}

	for _, step := range steps {
		start := time.Now()
		err := step.run()

		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeNoData {
			logger.Warn("query returned no data", slog.String("query", step.name))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query %s failed: %w", step.name, err)
		}
		logger.Info("query completed",
			slog.String("query", step.name),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	return r, nil
}
