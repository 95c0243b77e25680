package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/hitoshi/geotrail/internal/model"
	"github.com/hitoshi/geotrail/internal/repository"
)

// TopN はランキング系クエリの既定件数。
const TopN = 20

// Counts はエンティティごとの件数。
type Counts struct {
	Users       int `json:"users"`
	Activities  int `json:"activities"`
	TrackPoints int `json:"trackpoints"`
}

// YearSummary は最も活動の多い年と、最も記録時間の長い年。
// 2つは独立に求めるため一致しないことがある。
type YearSummary struct {
	BusiestYear   int  `json:"busiest_year"`
	Activities    int  `json:"activities"`
	MostHoursYear int  `json:"most_hours_year"`
	Hours         int  `json:"hours"`
	SameYear      bool `json:"same_year"`
}

// DistanceResult は条件付き距離集計の結果。
type DistanceResult struct {
	UserID     string  `json:"user_id"`
	Year       int     `json:"year"`
	Mode       string  `json:"transportation_mode"`
	Activities int     `json:"activities"`
	Kilometers float64 `json:"km"`
}

// UserMode はユーザーが最も多く使った移動手段。
type UserMode struct {
	UserID string `json:"user_id"`
	Mode   string `json:"transportation_mode"`
	Count  int    `json:"count"`
}

// Service は集計クエリのサービス層。
// グループ化はリポジトリのSQLに任せ、逐次走査と最大値選択をここで行う。
type Service struct {
	userRepo       repository.UserRepository
	activityRepo   repository.ActivityRepository
	trackPointRepo repository.TrackPointRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	activityRepo repository.ActivityRepository,
	trackPointRepo repository.TrackPointRepository,
) *Service {
	return &Service{
		userRepo:       userRepo,
		activityRepo:   activityRepo,
		trackPointRepo: trackPointRepo,
	}
}

// Counts はユーザー・アクティビティ・トラックポイントの件数を返す。
func (s *Service) Counts(ctx context.Context) (*Counts, error) {
	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	activities, err := s.activityRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("アクティビティ数の取得に失敗しました: %w", err)
	}
	trackPoints, err := s.trackPointRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("トラックポイント数の取得に失敗しました: %w", err)
	}
	return &Counts{Users: users, Activities: activities, TrackPoints: trackPoints}, nil
}

// AverageActivities はユーザーあたりの平均アクティビティ数を返す。
// アクティビティを持たないユーザーも分母に含める。ユーザーがいない場合は0。
func (s *Service) AverageActivities(ctx context.Context) (float64, error) {
	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("ユーザー数の取得に失敗しました: %w", err)
	}
	if users == 0 {
		return 0, nil
	}
	activities, err := s.activityRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("アクティビティ数の取得に失敗しました: %w", err)
	}
	return float64(activities) / float64(users), nil
}

// TopUsers はアクティビティ要約の件数が多いユーザーを上位n件返す。
func (s *Service) TopUsers(ctx context.Context, n int) ([]repository.UserActivityCount, error) {
	top, err := s.userRepo.TopByActivityCount(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("ユーザーランキングの取得に失敗しました: %w", err)
	}
	return top, nil
}

// UsersByMode は指定モードのアクティビティを持つユーザーIDを返す。
func (s *Service) UsersByMode(ctx context.Context, mode string) ([]string, error) {
	ids, err := s.userRepo.ListByMode(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("モード別ユーザーの取得に失敗しました: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ModeHistogram はモードごとのアクティビティ数を返す。モード未設定は含めない。
func (s *Service) ModeHistogram(ctx context.Context) ([]repository.ModeCount, error) {
	hist, err := s.activityRepo.ModeHistogram(ctx)
	if err != nil {
		return nil, fmt.Errorf("モード別件数の取得に失敗しました: %w", err)
	}
	if hist == nil {
		hist = []repository.ModeCount{}
	}
	return hist, nil
}

// BusiestYear は最も活動の多い年と最も記録時間の長い年を返す。
// 記録時間は年ごとの合計秒数を3600で整数除算した時間数で比較する。
// 同数の場合は早い年を採用する。アクティビティがない場合はNO_DATAエラー。
func (s *Service) BusiestYear(ctx context.Context) (*YearSummary, error) {
	counts, err := s.activityRepo.CountByYear(ctx)
	if err != nil {
		return nil, fmt.Errorf("年別件数の取得に失敗しました: %w", err)
	}
	seconds, err := s.activityRepo.SecondsByYear(ctx)
	if err != nil {
		return nil, fmt.Errorf("年別記録時間の取得に失敗しました: %w", err)
	}
	if len(counts) == 0 || len(seconds) == 0 {
		return nil, model.NewNoDataError("busiest-year")
	}

	summary := &YearSummary{}
	for i, c := range counts {
		if i == 0 || c.Count > summary.Activities || (c.Count == summary.Activities && c.Year < summary.BusiestYear) {
			summary.BusiestYear = c.Year
			summary.Activities = c.Count
		}
	}
	for i, sec := range seconds {
		hours := int(sec.Seconds / 3600)
		if i == 0 || hours > summary.Hours || (hours == summary.Hours && sec.Year < summary.MostHoursYear) {
			summary.MostHoursYear = sec.Year
			summary.Hours = hours
		}
	}
	summary.SameYear = summary.BusiestYear == summary.MostHoursYear
	return summary, nil
}

// Distance は条件に一致するアクティビティについて、連続2点間の距離の合計（km、小数点以下3桁）を返す。
func (s *Service) Distance(ctx context.Context, filter model.ActivityFilter) (*DistanceResult, error) {
	activities, err := s.activityRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("対象アクティビティの取得に失敗しました: %w", err)
	}

	result := &DistanceResult{
		UserID:     filter.UserID,
		Year:       filter.Year,
		Mode:       filter.Mode,
		Activities: len(activities),
	}
	if len(activities) == 0 {
		return result, nil
	}

	ids := make([]string, len(activities))
	for i, a := range activities {
		ids[i] = a.ID
	}

	fold := NewDistanceFold()
	if err := s.stream(ctx, model.TrackPointFilter{ActivityIDs: ids}, fold); err != nil {
		return nil, err
	}
	result.Kilometers = Round3(fold.Kilometers())
	return result, nil
}

// AltitudeGain は累積上昇高度の大きいユーザーを上位n件返す。
func (s *Service) AltitudeGain(ctx context.Context, n int) ([]UserTotal, error) {
	fold := NewAltitudeGainFold()
	if err := s.stream(ctx, model.TrackPointFilter{}, fold); err != nil {
		return nil, err
	}
	return fold.Top(n), nil
}

// InvalidActivities は時刻の空きが閾値以上の連続2点を持つユーザーと、その件数を返す。
func (s *Service) InvalidActivities(ctx context.Context) ([]UserTotal, error) {
	fold := NewTimeGapFold()
	if err := s.stream(ctx, model.TrackPointFilter{}, fold); err != nil {
		return nil, err
	}
	return fold.Users(), nil
}

// Visitors は地点を訪れたユーザーIDを昇順で返す。
func (s *Service) Visitors(ctx context.Context, region Region) ([]string, error) {
	bound := region.Bound()
	seen := make(map[string]struct{})
	err := s.trackPointRepo.Stream(ctx, model.TrackPointFilter{Within: &bound}, func(tp *model.TrackPoint) error {
		if region.Contains(tp.Lat, tp.Lon) {
			seen[tp.UserID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("地点の訪問者の取得に失敗しました: %w", err)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// TopModes はラベルを持つ各ユーザーが最も多く使ったモードを返す。
// 同数の場合はモード名の昇順で先のものを採用する。
func (s *Service) TopModes(ctx context.Context) ([]UserMode, error) {
	counts, err := s.userRepo.ModeCountsForLabeled(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー別モード件数の取得に失敗しました: %w", err)
	}
	return pickTopModes(counts), nil
}

func pickTopModes(counts []repository.UserModeCount) []UserMode {
	best := make(map[string]UserMode)
	for _, c := range counts {
		cur, ok := best[c.UserID]
		if !ok || c.Count > cur.Count || (c.Count == cur.Count && c.Mode < cur.Mode) {
			best[c.UserID] = UserMode{UserID: c.UserID, Mode: c.Mode, Count: c.Count}
		}
	}

	result := make([]UserMode, 0, len(best))
	for _, m := range best {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})
	return result
}

// stream はトラックポイントを順序付きで取得し、foldに流す。
func (s *Service) stream(ctx context.Context, filter model.TrackPointFilter, fold Fold) error {
	err := s.trackPointRepo.Stream(ctx, filter, func(tp *model.TrackPoint) error {
		fold.Add(tp)
		return nil
	})
	if err != nil {
		return fmt.Errorf("トラックポイントの走査に失敗しました: %w", err)
	}
	return nil
}
