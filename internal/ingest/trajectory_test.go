package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/geotrail/internal/dataset"
	"github.com/hitoshi/geotrail/internal/model"
)

func row(fields ...string) []string { return fields }

func TestParseSamples_ConvertsFields(t *testing.T) {
	rows := [][]string{
		row("39.984702", "116.318417", "0", "492", "39744.1201851852", "2008-10-23", "02:53:04"),
		row("39.984683", "116.31845", "0", "-777", "39744.1202546296", "2008/10/23", "02:53:10"),
		row("39.984686", "116.318417", "0", "10.5", "39744.1203240741", "2008-10-23", "02:53:16"),
	}

	samples, err := parseSamples("a.plt", rows)
	if err != nil {
		t.Fatalf("parseSamples returned error: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(samples))
	}

	if samples[0].lat != 39.984702 || samples[0].lon != 116.318417 {
		t.Errorf("samples[0] coordinates = (%v, %v)", samples[0].lat, samples[0].lon)
	}
	if v, ok := samples[0].altitude.Value(); !ok || v != 492 {
		t.Errorf("samples[0].altitude = %v, want 492", samples[0].altitude)
	}
	if samples[1].altitude.Known() {
		t.Errorf("samples[1].altitude should be unknown for -777")
	}
	// 10.5は偶数丸めで10
	if v, _ := samples[2].altitude.Value(); v != 10 {
		t.Errorf("samples[2].altitude = %d, want 10", v)
	}

	want := time.Date(2008, 10, 23, 2, 53, 10, 0, time.UTC)
	if !samples[1].dateTime.Equal(want) {
		t.Errorf("samples[1].dateTime = %v, want %v", samples[1].dateTime, want)
	}
	if samples[0].dateDays != 39744.1201851852 {
		t.Errorf("samples[0].dateDays = %v", samples[0].dateDays)
	}
}

func TestParseSamples_Errors(t *testing.T) {
	tests := []struct {
		name      string
		rows      [][]string
		wantLine  int
		wantField string
	}{
		{
			name:      "サンプルなし",
			rows:      [][]string{},
			wantLine:  dataset.TrajectoryHeaderLines + 1,
			wantField: "row",
		},
		{
			name: "列不足",
			rows: [][]string{
				row("39.9", "116.3", "0", "492", "39744.1", "2008-10-23", "02:53:04"),
				row("39.9", "116.3", "0"),
			},
			wantLine:  dataset.TrajectoryHeaderLines + 2,
			wantField: "row",
		},
		{
			name:      "緯度が数値でない",
			rows:      [][]string{row("north", "116.3", "0", "492", "39744.1", "2008-10-23", "02:53:04")},
			wantLine:  dataset.TrajectoryHeaderLines + 1,
			wantField: "lat",
		},
		{
			name:      "高度が数値でない",
			rows:      [][]string{row("39.9", "116.3", "0", "high", "39744.1", "2008-10-23", "02:53:04")},
			wantLine:  dataset.TrajectoryHeaderLines + 1,
			wantField: "altitude",
		},
		{
			name:      "時刻が不正",
			rows:      [][]string{row("39.9", "116.3", "0", "492", "39744.1", "2008-10-23", "25:61:00")},
			wantLine:  dataset.TrajectoryHeaderLines + 1,
			wantField: "date_time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSamples("bad.plt", tt.rows)
			var rowErr *model.MalformedRowError
			if !errors.As(err, &rowErr) {
				t.Fatalf("expected MalformedRowError, got %v", err)
			}
			if rowErr.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", rowErr.Line, tt.wantLine)
			}
			if rowErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", rowErr.Field, tt.wantField)
			}
			if rowErr.Path != "bad.plt" {
				t.Errorf("Path = %q, want bad.plt", rowErr.Path)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	labels := dataset.LabelIndex{
		"20070626113229": {
			StartDate: "2007/06/26", StartTime: "11:32:29",
			EndDate: "2007/06/26", EndTime: "11:40:29",
			Mode: "bus",
		},
	}
	end := time.Date(2007, 6, 26, 11, 40, 29, 0, time.UTC)

	t.Run("開始キーと終了時刻が一致", func(t *testing.T) {
		mode := reconcile(labels, "20070626113229", end)
		if mode == nil || *mode != "bus" {
			t.Errorf("mode = %v, want bus", mode)
		}
	})

	t.Run("終了時刻が1秒ずれている", func(t *testing.T) {
		if mode := reconcile(labels, "20070626113229", end.Add(time.Second)); mode != nil {
			t.Errorf("mode = %q, want nil", *mode)
		}
	})

	t.Run("開始キーが存在しない", func(t *testing.T) {
		if mode := reconcile(labels, "20070626113230", end); mode != nil {
			t.Errorf("mode = %q, want nil", *mode)
		}
	})

	t.Run("ラベルなし", func(t *testing.T) {
		if mode := reconcile(nil, "20070626113229", end); mode != nil {
			t.Errorf("mode = %q, want nil", *mode)
		}
	})
}
