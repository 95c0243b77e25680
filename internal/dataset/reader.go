// Package dataset はデータセットのテキストファイルを読み込む。
// 数値変換は行わず、行をトークン列に分割するだけの字句処理を提供する。
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hitoshi/geotrail/internal/model"
)

// TrajectoryHeaderLines は軌跡ファイル先頭のヘッダー行数。
const TrajectoryHeaderLines = 6

// ReadIDList は1行1トークンのIDリストファイルを読み込む。
// 空行は読み飛ばす。
func ReadIDList(path string) ([]string, error) {
	var ids []string
	err := scanLines(path, func(line string) {
		if id := strings.TrimSpace(line); id != "" {
			ids = append(ids, id)
		}
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ReadRows は表形式ファイルを読み込み、各行をトークン列として返す。
// カンマは空白として扱い、前後の空白を除いて空白で分割する。
// 空行は長さ0の行として保持する（ヘッダー行数の計算を崩さないため）。
func ReadRows(path string) ([][]string, error) {
	var rows [][]string
	err := scanLines(path, func(line string) {
		rows = append(rows, SplitRow(line))
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SplitRow は1行をトークン列に分割する。
func SplitRow(line string) []string {
	return strings.Fields(strings.ReplaceAll(strings.TrimSpace(line), ",", " "))
}

// ReadTrajectory は軌跡ファイルを読み込み、固定長のヘッダーを除いた行を返す。
// ヘッダー以降の空行（末尾の改行など）は含めない。
func ReadTrajectory(path string) ([][]string, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}
	if len(rows) <= TrajectoryHeaderLines {
		return [][]string{}, nil
	}

	data := make([][]string, 0, len(rows)-TrajectoryHeaderLines)
	for _, row := range rows[TrajectoryHeaderLines:] {
		if len(row) > 0 {
			data = append(data, row)
		}
	}
	return data, nil
}

// TimestampLayout は日付と時刻を連結した文字列の解析レイアウト。
const TimestampLayout = "2006-01-02 15:04:05"

// ParseTimestamp は "YYYY/MM/DD"（または "YYYY-MM-DD"）と "HH:MM:SS" をUTCの時刻に変換する。
func ParseTimestamp(date, clock string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.ReplaceAll(date, "/", "-")+" "+clock, time.UTC)
}

func scanLines(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return &model.FileAccessError{Path: path, Err: err}
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fn(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return &model.FileAccessError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	return nil
}
