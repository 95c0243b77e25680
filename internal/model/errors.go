// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrActivityInsertion はアクティビティの登録結果にIDが含まれなかったことを表す。
// トラックポイントが存在しない親を参照することになるため、取り込み全体を中断する。
var ErrActivityInsertion = errors.New("activity was not inserted")

// ErrOversizeActivity はサンプル数が上限を超えた軌跡ファイルを表す。
// 取り込み処理内で黙ってスキップされ、呼び出し元には返らない。
var ErrOversizeActivity = errors.New("activity exceeds trackpoint limit")

// ErrStoreNotEmpty は既にデータが存在するストアへの取り込みを拒否したことを表す。
// リセットせずに再実行した場合の二重登録を防ぐ。
var ErrStoreNotEmpty = errors.New("store already contains users; reset before ingesting")

// ErrOrphanTrajectory はユーザーディレクトリ外でTrajectoryディレクトリが見つかったことを表す。
var ErrOrphanTrajectory = errors.New("trajectory directory without owning user")

// FileAccessError は元データファイルが存在しない、または読めないことを表す。
type FileAccessError struct {
	Path string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *FileAccessError) Error() string {
	return fmt.Sprintf("cannot access %s: %v", e.Path, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *FileAccessError) Unwrap() error {
	return e.Err
}

// MalformedRowError は行の数値・日時の解析に失敗したことを表す。
// Lineはファイル内の1始まりの行番号。
type MalformedRowError struct {
	Path  string
	Line  int
	Field string
	Err   error
}

// Error はerrorインターフェースを実装する。
func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("%s:%d: malformed %s: %v", e.Path, e.Line, e.Field, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, query, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidParameter = "INVALID_PARAMETER"
	ErrCodeMissingParameter = "MISSING_PARAMETER"
	ErrCodeNoData           = "NO_DATA"
)

// NewInvalidParameterError はクエリパラメータの値が不正な場合のエラーを生成する。
func NewInvalidParameterError(name, value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  fmt.Sprintf("パラメータ %s の値が不正です: %s", name, value),
		Category: "validation",
		Action:   "パラメータの形式を確認してください。",
	}
}

// NewMissingParameterError は必須クエリパラメータが無い場合のエラーを生成する。
func NewMissingParameterError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingParameter,
		Message:  fmt.Sprintf("パラメータ %s が指定されていません。", name),
		Category: "validation",
		Action:   "必須パラメータを指定してください。",
	}
}

// NewNoDataError は集計対象のデータが存在しない場合のエラーを生成する。
func NewNoDataError(query string) *APIError {
	return &APIError{
		Code:     ErrCodeNoData,
		Message:  fmt.Sprintf("集計対象のデータがありません: %s", query),
		Category: "query",
		Action:   "データセットを取り込んでから再度お試しください。",
	}
}
