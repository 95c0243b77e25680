// Package ingest はデータセットのディレクトリを走査し、
// User / Activity / TrackPoint をストアに登録する取り込みパイプラインを提供する。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/geotrail/internal/dataset"
	"github.com/hitoshi/geotrail/internal/metrics"
	"github.com/hitoshi/geotrail/internal/model"
	"github.com/hitoshi/geotrail/internal/repository"
)

// データセット内の固定名。
const (
	DataDirName        = "Data"
	TrajectoryDirName  = "Trajectory"
	LabelFileName      = "labels.txt"
	LabeledIDsFileName = "labeled_ids.txt"
)

// State は走査中のディレクトリの分類。
type State int

const (
	// StateScanning はユーザーにも軌跡にも該当しないディレクトリ。
	StateScanning State = iota
	// StateNewUser は最初のサブディレクトリがTrajectoryであるユーザーディレクトリ。
	StateNewUser
	// StateIngestActivities はTrajectoryディレクトリ。
	StateIngestActivities
)

// String はログ出力用の名前を返す。
func (s State) String() string {
	switch s {
	case StateNewUser:
		return "NEW_USER"
	case StateIngestActivities:
		return "INGEST_ACTIVITIES"
	default:
		return "SCANNING"
	}
}

// Classify はディレクトリのパスと直下のエントリ（名前順）から状態を決める。
func Classify(dir string, entries []fs.DirEntry) State {
	if filepath.Base(dir) == TrajectoryDirName {
		return StateIngestActivities
	}
	if first := firstEntry(entries, true); first == TrajectoryDirName {
		return StateNewUser
	}
	return StateScanning
}

// firstEntry は名前順で最初のディレクトリ（dirs=true）または通常ファイルの名前を返す。
func firstEntry(entries []fs.DirEntry, dirs bool) string {
	for _, e := range entries {
		if dirs && e.IsDir() {
			return e.Name()
		}
		if !dirs && e.Type().IsRegular() {
			return e.Name()
		}
	}
	return ""
}

// Config は取り込みパイプラインの設定。
type Config struct {
	DatasetDir     string
	StopAtUser     string // このユーザーIDに到達したら登録せずに終了する
	MaxTrackPoints int    // これを超えるサンプル数の軌跡ファイルはスキップする
	SkipMalformed  bool   // 読めない・解析できない軌跡ファイルを中断せずにスキップする
}

// Result は取り込み結果の集計。
type Result struct {
	Users             int           `json:"users"`
	LabeledUsers      int           `json:"labeled_users"`
	Activities        int           `json:"activities"`
	LabeledActivities int           `json:"labeled_activities"`
	TrackPoints       int           `json:"trackpoints"`
	SkippedOversize   int           `json:"skipped_oversize"`
	SkippedMalformed  int           `json:"skipped_malformed"`
	StoppedAt         string        `json:"stopped_at,omitempty"`
	Elapsed           time.Duration `json:"elapsed"`
}

// errStopped は停止ユーザーに到達したことを表す内部用のエラー。
var errStopped = errors.New("stop marker reached")

// Pipeline は取り込みパイプライン。単一ゴルーチンで逐次実行する。
type Pipeline struct {
	userRepo       repository.UserRepository
	activityRepo   repository.ActivityRepository
	trackPointRepo repository.TrackPointRepository
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	cfg            Config
}

// NewPipeline はPipelineの新しいインスタンスを生成する。
// MaxTrackPointsが0以下の場合はmodel.MaxTrackPointsPerActivityを使う。
func NewPipeline(
	userRepo repository.UserRepository,
	activityRepo repository.ActivityRepository,
	trackPointRepo repository.TrackPointRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Pipeline {
	if cfg.MaxTrackPoints <= 0 {
		cfg.MaxTrackPoints = model.MaxTrackPointsPerActivity
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Pipeline{
		userRepo:       userRepo,
		activityRepo:   activityRepo,
		trackPointRepo: trackPointRepo,
		metrics:        collector,
		logger:         logger,
		cfg:            cfg,
	}
}

// run は1回の走査中の状態。現在のユーザーとそのラベルを保持する。
type run struct {
	labeled map[string]bool
	user    *model.User
	userDir string
	labels  dataset.LabelIndex
	result  Result
}

// Run はデータセット全体を取り込む。
// ストアにユーザーが既に存在する場合はmodel.ErrStoreNotEmptyを返し、何も登録しない。
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	existing, err := p.userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("既存ユーザー数の取得に失敗: %w", err)
	}
	if existing > 0 {
		return nil, model.ErrStoreNotEmpty
	}

	ids, err := dataset.ReadIDList(filepath.Join(p.cfg.DatasetDir, LabeledIDsFileName))
	if err != nil {
		return nil, fmt.Errorf("ラベル付きユーザー一覧の読み込みに失敗: %w", err)
	}
	r := &run{labeled: make(map[string]bool, len(ids))}
	for _, id := range ids {
		r.labeled[id] = true
	}

	p.logger.Info("ingestion started",
		slog.String("dataset_dir", p.cfg.DatasetDir),
		slog.Int("labeled_users", len(ids)),
		slog.Int("max_trackpoints", p.cfg.MaxTrackPoints),
	)

	err = p.walk(ctx, filepath.Join(p.cfg.DatasetDir, DataDirName), r)
	r.result.Elapsed = time.Since(start)
	p.metrics.RecordIngestDuration(r.result.Elapsed)

	if err != nil && !errors.Is(err, errStopped) {
		p.logger.Error("ingestion aborted",
			slog.String("error", err.Error()),
			slog.Int("users", r.result.Users),
			slog.Int("activities", r.result.Activities),
		)
		return &r.result, err
	}

	p.logger.Info("ingestion completed",
		slog.Int("users", r.result.Users),
		slog.Int("activities", r.result.Activities),
		slog.Int("labeled_activities", r.result.LabeledActivities),
		slog.Int("trackpoints", r.result.TrackPoints),
		slog.Int("skipped_oversize", r.result.SkippedOversize),
		slog.Int("skipped_malformed", r.result.SkippedMalformed),
		slog.String("stopped_at", r.result.StoppedAt),
		slog.Duration("elapsed", r.result.Elapsed),
	)
	return &r.result, nil
}

// walk はディレクトリを名前順・深さ優先で走査する。
func (p *Pipeline) walk(ctx context.Context, dir string, r *run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// os.ReadDirは名前順に返す
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &model.FileAccessError{Path: dir, Err: err}
	}

	switch Classify(dir, entries) {
	case StateNewUser:
		if err := p.startUser(ctx, dir, entries, r); err != nil {
			return err
		}
	case StateIngestActivities:
		if err := p.ingestActivities(ctx, dir, entries, r); err != nil {
			return err
		}
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := p.walk(ctx, filepath.Join(dir, e.Name()), r); err != nil {
			return err
		}
	}
	return nil
}

// startUser はユーザーを登録し、ラベルがあれば読み込む。
func (p *Pipeline) startUser(ctx context.Context, dir string, entries []fs.DirEntry, r *run) error {
	id := filepath.Base(dir)
	if p.cfg.StopAtUser != "" && id == p.cfg.StopAtUser {
		p.logger.Info("stop marker reached", slog.String("user_id", id))
		r.result.StoppedAt = id
		return errStopped
	}

	var labels dataset.LabelIndex
	hasLabel := r.labeled[id] && firstEntry(entries, false) == LabelFileName
	if hasLabel {
		var err error
		labels, err = dataset.ReadLabels(filepath.Join(dir, LabelFileName))
		if err != nil {
			// 読めなかったラベルは存在しないものとして扱う
			p.logger.Warn("label file could not be read",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
			hasLabel = false
			labels = nil
		}
	}

	user, err := model.NewUser(id, hasLabel)
	if err != nil {
		return err
	}
	ids, err := p.userRepo.Insert(ctx, []*model.User{user})
	if err != nil {
		return fmt.Errorf("ユーザー %s の登録に失敗: %w", id, err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("ユーザー %s が登録されませんでした", id)
	}

	r.user = user
	r.userDir = dir
	r.labels = labels
	r.result.Users++
	if hasLabel {
		r.result.LabeledUsers++
	}
	p.metrics.RecordUserIngested(hasLabel)

	p.logger.Debug("user registered",
		slog.String("user_id", id),
		slog.Bool("has_label", hasLabel),
		slog.Int("labels", len(labels)),
	)
	return nil
}

// ingestActivities はTrajectoryディレクトリ内の全軌跡ファイルを取り込み、
// 要約一覧を現在のユーザーに1回だけ書き戻す。
func (p *Pipeline) ingestActivities(ctx context.Context, dir string, entries []fs.DirEntry, r *run) error {
	if r.user == nil || filepath.Dir(dir) != r.userDir {
		return fmt.Errorf("%s: %w", dir, model.ErrOrphanTrajectory)
	}

	summaries := []model.ActivitySummary{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, e.Name())
		summary, err := p.insertTrajectory(ctx, path, r)
		switch {
		case err == nil:
			summaries = append(summaries, summary)
		case errors.Is(err, model.ErrOversizeActivity):
			r.result.SkippedOversize++
			p.metrics.RecordActivitySkipped(metrics.SkipReasonOversize)
			p.logger.Debug("oversize trajectory skipped", slog.String("file", path))
		case p.cfg.SkipMalformed && isSourceError(err):
			r.result.SkippedMalformed++
			p.metrics.RecordActivitySkipped(metrics.SkipReasonMalformed)
			p.logger.Warn("malformed trajectory skipped",
				slog.String("file", path),
				slog.String("error", err.Error()),
			)
		default:
			return err
		}
	}

	if err := p.userRepo.UpdateActivities(ctx, r.user.ID, summaries); err != nil {
		return fmt.Errorf("ユーザー %s のアクティビティ更新に失敗: %w", r.user.ID, err)
	}
	r.user.Activities = summaries

	p.logger.Info("user ingested",
		slog.String("user_id", r.user.ID),
		slog.Bool("has_label", r.user.HasLabel),
		slog.Int("activities", len(summaries)),
	)
	return nil
}

// insertTrajectory は1つの軌跡ファイルからActivityとTrackPointを登録する。
// 全行を解析してから登録するため、不正な行があれば何も登録しない。
func (p *Pipeline) insertTrajectory(ctx context.Context, path string, r *run) (model.ActivitySummary, error) {
	rows, err := dataset.ReadTrajectory(path)
	if err != nil {
		return model.ActivitySummary{}, err
	}
	if len(rows) > p.cfg.MaxTrackPoints {
		return model.ActivitySummary{}, model.ErrOversizeActivity
	}

	samples, err := parseSamples(path, rows)
	if err != nil {
		return model.ActivitySummary{}, err
	}

	start := samples[0].dateTime
	end := samples[len(samples)-1].dateTime
	key := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	mode := reconcile(r.labels, key, end)

	activity, err := model.NewActivity(r.user.ID, mode, start, end)
	if err != nil {
		return model.ActivitySummary{}, &model.MalformedRowError{Path: path, Field: "date_time", Err: err}
	}

	ids, err := p.activityRepo.Insert(ctx, []*model.Activity{activity})
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("%s のアクティビティ登録に失敗: %w", path, err)
	}
	if len(ids) == 0 {
		return model.ActivitySummary{}, fmt.Errorf("%s: %w", path, model.ErrActivityInsertion)
	}
	activity.ID = ids[0]

	points := make([]*model.TrackPoint, len(samples))
	for i, s := range samples {
		tp, err := model.NewTrackPoint(r.user.ID, activity.ID, i, s.lat, s.lon, s.altitude, s.dateDays, s.dateTime)
		if err != nil {
			return model.ActivitySummary{}, fmt.Errorf("%s: %w", path, err)
		}
		points[i] = tp
	}

	n, err := p.trackPointRepo.InsertBatch(ctx, points)
	if err != nil {
		return model.ActivitySummary{}, fmt.Errorf("%s のトラックポイント登録に失敗: %w", path, err)
	}

	r.result.Activities++
	r.result.TrackPoints += n
	if mode != nil {
		r.result.LabeledActivities++
	}
	p.metrics.RecordActivityIngested(mode != nil)
	p.metrics.RecordTrackPointsIngested(n)

	return activity.Summary(), nil
}

// isSourceError は元データ側の問題（読めない・解析できない）によるエラーかを返す。
func isSourceError(err error) bool {
	var fileErr *model.FileAccessError
	var rowErr *model.MalformedRowError
	return errors.As(err, &fileErr) || errors.As(err, &rowErr)
}
