package batch

import (
	"errors"
	"fmt"
)

// Common batch lifecycle errors
// 共通のバッチライフサイクルエラー定義

var (
	// ErrBatchNotFound is returned when a batch doesn't exist
	// バッチが存在しない場合のエラー
	ErrBatchNotFound = errors.New("バッチが見つかりません")

	// ErrProductNotFound is returned when a product reference is unknown
	// 商品参照が存在しない場合のエラー
	ErrProductNotFound = errors.New("商品が見つかりません")

	// ErrSupplierNotFound is returned when a supplier reference is unknown
	// 仕入先参照が存在しない場合のエラー
	ErrSupplierNotFound = errors.New("仕入先が見つかりません")

	// ErrInvalidBatchState is returned when an operation is not valid for the
	// batch's current status, including double-approval attempts
	// バッチの現在の状態では操作が無効な場合のエラー（二重承認を含む）
	ErrInvalidBatchState = errors.New("バッチの状態ではこの操作は実行できません")

	// ErrDuplicateBatchCode is returned when a batch code already exists
	// バッチコードが既に存在する場合のエラー
	ErrDuplicateBatchCode = errors.New("バッチコードは既に存在します")

	// ErrVersionMismatch is returned when optimistic locking fails
	// 楽観的ロック失敗時のエラー
	ErrVersionMismatch = errors.New("バージョンが一致しません。他のユーザーによって更新されています")

	// ErrQualityCheckRequired is returned when approval is attempted without a
	// passed quality check while the gating policy is enabled
	// 品質検査ゲートが有効な状態で、合格検査なしの承認を試みた場合のエラー
	ErrQualityCheckRequired = errors.New("承認には合格した品質検査が必要です")
)

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

// ConcurrencyError represents a concurrency-related error
// 同時実行関連のエラーを表現
type ConcurrencyError struct {
	Operation string `json:"operation"` // 操作名
	Resource  string `json:"resource"`  // リソース
	Message   string `json:"message"`   // エラーメッセージ
}

func (e ConcurrencyError) Error() string {
	return fmt.Sprintf("同時実行エラー [%s:%s]: %s", e.Operation, e.Resource, e.Message)
}

// StorageError represents a storage layer error
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e StorageError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewConcurrencyError creates a new concurrency error
// 新しい同時実行エラーを作成
func NewConcurrencyError(operation, resource, message string) *ConcurrencyError {
	return &ConcurrencyError{
		Operation: operation,
		Resource:  resource,
		Message:   message,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// IsValidation reports whether err is a validation error
// errがバリデーションエラーかを判定
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is one of the not-found sentinels
// errが未存在系のエラーかを判定
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrSupplierNotFound)
}

// IsInvalidState reports whether err is a state-conflict error
// errが状態競合エラーかを判定
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidBatchState) || errors.Is(err, ErrQualityCheckRequired)
}
