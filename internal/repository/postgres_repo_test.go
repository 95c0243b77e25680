package repository

import (
	"strings"
	"testing"

	"github.com/hitoshi/geotrail/internal/model"
	"github.com/paulmach/orb"
)

func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ ActivityRepository = (*PostgresActivityRepo)(nil)
	var _ TrackPointRepository = (*PostgresTrackPointRepo)(nil)
}

func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Error("expected non-nil user repo")
	}
	if NewPostgresActivityRepo(nil) == nil {
		t.Error("expected non-nil activity repo")
	}
	if NewPostgresTrackPointRepo(nil) == nil {
		t.Error("expected non-nil trackpoint repo")
	}
}

func TestBuildActivityListQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    model.ActivityFilter
		wantWhere string
		wantArgs  int
	}{
		{
			name:      "条件なし",
			filter:    model.ActivityFilter{},
			wantWhere: "",
			wantArgs:  0,
		},
		{
			name:      "ユーザーのみ",
			filter:    model.ActivityFilter{UserID: "112"},
			wantWhere: " WHERE user_id = $1",
			wantArgs:  1,
		},
		{
			name:      "全条件",
			filter:    model.ActivityFilter{UserID: "112", Year: 2008, Mode: "walk"},
			wantWhere: " WHERE user_id = $1 AND EXTRACT(YEAR FROM start_date_time)::int = $2 AND transportation_mode = $3",
			wantArgs:  3,
		},
		{
			name:      "年とモード",
			filter:    model.ActivityFilter{Year: 2009, Mode: "bus"},
			wantWhere: " WHERE EXTRACT(YEAR FROM start_date_time)::int = $1 AND transportation_mode = $2",
			wantArgs:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildActivityListQuery(tt.filter)
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
			want := "FROM activities" + tt.wantWhere + " ORDER BY start_date_time, id"
			if !strings.HasSuffix(query, want) {
				t.Errorf("query = %q, want suffix %q", query, want)
			}
		})
	}
}

func TestBuildTrackPointStreamQuery_AlwaysOrdersForSequentialScan(t *testing.T) {
	query, args := buildTrackPointStreamQuery(model.TrackPointFilter{})
	if len(args) != 0 {
		t.Errorf("len(args) = %d, want 0", len(args))
	}
	if strings.Contains(query, "WHERE") {
		t.Errorf("unexpected WHERE in %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY activity_id, date_time, seq") {
		t.Errorf("query must order by activity_id, date_time, seq: %q", query)
	}
}

func TestBuildTrackPointStreamQuery_WithActivitiesAndBound(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{116.3965, 39.9155}, Max: orb.Point{116.3975, 39.9165}}
	query, args := buildTrackPointStreamQuery(model.TrackPointFilter{
		ActivityIDs: []string{"a", "b"},
		Within:      &bound,
	})

	if !strings.Contains(query, "activity_id = ANY($1::uuid[])") {
		t.Errorf("missing activity condition: %q", query)
	}
	if !strings.Contains(query, "lat BETWEEN $2 AND $3 AND lon BETWEEN $4 AND $5") {
		t.Errorf("missing bound condition: %q", query)
	}
	if len(args) != 5 {
		t.Fatalf("len(args) = %d, want 5", len(args))
	}
	// orb.Pointは[lon, lat]の順
	if args[1] != 39.9155 || args[2] != 39.9165 {
		t.Errorf("lat args = %v, %v", args[1], args[2])
	}
	if args[3] != 116.3965 || args[4] != 116.3975 {
		t.Errorf("lon args = %v, %v", args[3], args[4])
	}
}

func TestMarshalSummaries_NilBecomesEmptyArray(t *testing.T) {
	got, err := marshalSummaries(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "[]" {
		t.Errorf("marshalSummaries(nil) = %q, want %q", got, "[]")
	}
}

func TestSummariesRoundTrip_PreservesNullMode(t *testing.T) {
	in := []model.ActivitySummary{
		{ActivityID: "a1", TransportationMode: model.ModeOf("walk")},
		{ActivityID: "a2"},
	}
	data, err := marshalSummaries(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(data, `"transportation_mode":null`) {
		t.Errorf("expected explicit null mode in %s", data)
	}

	out, err := unmarshalSummaries([]byte(data))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].TransportationMode == nil || *out[0].TransportationMode != "walk" {
		t.Errorf("out[0].TransportationMode = %v, want walk", out[0].TransportationMode)
	}
	if out[1].TransportationMode != nil {
		t.Errorf("out[1].TransportationMode = %v, want nil", *out[1].TransportationMode)
	}
}

func TestUnmarshalSummaries_Empty(t *testing.T) {
	out, err := unmarshalSummaries(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", out)
	}
}
