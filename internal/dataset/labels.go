package dataset

import (
	"errors"
	"strings"
	"time"

	"github.com/hitoshi/geotrail/internal/model"
)

// Label はlabels.txtの1行（1アクティビティ分のラベル）を表す。
type Label struct {
	StartDate string
	StartTime string
	EndDate   string
	EndTime   string
	Mode      string
}

// End はラベルの終了時刻を返す。
func (l Label) End() (time.Time, error) {
	return ParseTimestamp(l.EndDate, l.EndTime)
}

// LabelIndex は開始キーからラベルへの対応表。
// 開始キーは対応する軌跡ファイルのベース名と一致する。
type LabelIndex map[string]Label

// LabelKey は開始日付と開始時刻から照合キーを作る。
// "2007/06/26" と "11:32:29" は "20070626113229" になる。
func LabelKey(startDate, startTime string) string {
	date := strings.ReplaceAll(strings.ReplaceAll(startDate, "/", ""), "-", "")
	return date + strings.ReplaceAll(startTime, ":", "")
}

// ReadLabels はユーザーのラベルファイルを読み込む。
// 先頭行はヘッダーとして読み飛ばす。同じ開始キーを持つ行は後勝ち。
func ReadLabels(path string) (LabelIndex, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}

	index := make(LabelIndex)
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		if len(row) < 5 {
			return nil, &model.MalformedRowError{
				Path:  path,
				Line:  i + 1,
				Field: "label",
				Err:   errors.New("expected start_date start_time end_date end_time mode"),
			}
		}
		label := Label{
			StartDate: row[0],
			StartTime: row[1],
			EndDate:   row[2],
			EndTime:   row[3],
			Mode:      row[4],
		}
		index[LabelKey(label.StartDate, label.StartTime)] = label
	}
	return index, nil
}

// Lookup はキーに対応するラベルを返す。
func (idx LabelIndex) Lookup(key string) (Label, bool) {
	if idx == nil {
		return Label{}, false
	}
	l, ok := idx[key]
	return l, ok
}
