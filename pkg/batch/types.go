// Package batch provides batch lifecycle management functionality
package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch represents one procurement lot of a product from a supplier
// 仕入先からの商品1ロット（入荷バッチ）を表現
type Batch struct {
	ID                string          `json:"id" db:"id"`                                   // バッチID
	BatchCode         string          `json:"batch_code" db:"batch_code"`                   // バッチコード（一意）
	ProductID         string          `json:"product_id" db:"product_id"`                   // 商品ID（作成後不変）
	SupplierID        string          `json:"supplier_id" db:"supplier_id"`                 // 仕入先ID（作成後不変）
	Quantity          int64           `json:"quantity" db:"quantity"`                       // 入荷数量
	RemainingQuantity int64           `json:"remaining_quantity" db:"remaining_quantity"`   // 残数量（0 <= 残 <= 入荷数量）
	UnitCost          decimal.Decimal `json:"unit_cost" db:"unit_cost"`                     // 単価
	TotalCost         decimal.Decimal `json:"total_cost" db:"total_cost"`                   // 総額（単価 × 数量、常に再計算）
	ManufacturingDate *time.Time      `json:"manufacturing_date,omitempty" db:"manufacturing_date"` // 製造日
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty" db:"expiry_date"`       // 有効期限
	Status            BatchStatus     `json:"status" db:"status"`                           // ステータス
	Location          string          `json:"location" db:"location"`                       // 保管場所
	Notes             string          `json:"notes" db:"notes"`                             // 備考
	QualityCheck      *QualityCheck   `json:"quality_check,omitempty"`                      // 品質検査結果（未検査ならnil）
	CreatedBy         string          `json:"created_by" db:"created_by"`                   // 作成者（不変）
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`                   // 作成日時
	ApprovedBy        *string         `json:"approved_by,omitempty" db:"approved_by"`       // 承認者（一度だけ設定）
	ApprovedAt        *time.Time      `json:"approved_at,omitempty" db:"approved_at"`       // 承認日時（一度だけ設定）
	Version           int64           `json:"version" db:"version"`                         // 楽観的ロック用バージョン

	// 導出フィールド（永続化しない、照会時に計算）
	DaysUntilExpiry *int         `json:"days_until_expiry,omitempty"` // 期限までの日数（負の場合あり）
	ExpiryStatus    ExpiryStatus `json:"expiry_status,omitempty"`     // 鮮度ステータス
}

// QualityCheck represents a pass/fail inspection record attached to a batch
// バッチに紐づく合否検査記録を表現（再検査で上書きされる）
type QualityCheck struct {
	Passed    bool      `json:"passed" db:"qc_passed"`         // 合否
	CheckedBy string    `json:"checked_by" db:"qc_checked_by"` // 検査者
	CheckedAt time.Time `json:"checked_at" db:"qc_checked_at"` // 検査日時
	Notes     string    `json:"notes" db:"qc_notes"`           // 検査メモ
}

// BatchStatus defines the lifecycle status of a batch
// バッチのライフサイクルステータスを定義
type BatchStatus string

const (
	BatchStatusPending  BatchStatus = "pending"  // 承認待ち
	BatchStatusReceived BatchStatus = "received" // 入荷済み（activeの別名として外部から受理）
	BatchStatusActive   BatchStatus = "active"   // 承認済み・使用可能
	BatchStatusExpired  BatchStatus = "expired"  // 期限切れ（外部プロセスが設定）
	BatchStatusRecalled BatchStatus = "recalled" // リコール（外部プロセスが設定）
	BatchStatusDisposed BatchStatus = "disposed" // 廃棄済み（外部プロセスが設定）
)

// ValidBatchStatus reports whether s is a known batch status
// sが既知のバッチステータスかを判定
func ValidBatchStatus(s string) bool {
	switch BatchStatus(s) {
	case BatchStatusPending, BatchStatusReceived, BatchStatusActive,
		BatchStatusExpired, BatchStatusRecalled, BatchStatusDisposed:
		return true
	}
	return false
}

// Product represents read-only catalog reference data
// カタログの読み取り専用参照データ（商品）を表現
type Product struct {
	ID            string    `json:"id" db:"id"`                         // 商品ID
	Name          string    `json:"name" db:"name"`                     // 商品名
	SKU           string    `json:"sku" db:"sku"`                       // SKU
	Category      string    `json:"category" db:"category"`             // カテゴリ
	StockQuantity int64     `json:"stock_quantity" db:"stock_quantity"` // 利用可能在庫（承認で加算）
	CreatedAt     time.Time `json:"created_at" db:"created_at"`         // 作成日時
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`         // 更新日時
}

// Supplier represents read-only supplier reference data
// 読み取り専用の仕入先参照データを表現
type Supplier struct {
	ID           string    `json:"id" db:"id"`                       // 仕入先ID
	Name         string    `json:"name" db:"name"`                   // 仕入先名
	ContactEmail string    `json:"contact_email" db:"contact_email"` // 連絡先メール
	Phone        string    `json:"phone" db:"phone"`                 // 電話番号
	IsActive     bool      `json:"is_active" db:"is_active"`         // アクティブ状態
	CreatedAt    time.Time `json:"created_at" db:"created_at"`       // 作成日時
}

// BatchEvent represents one entry of a batch's audit history
// バッチ監査履歴の1エントリを表現
type BatchEvent struct {
	ID        string         `json:"id" db:"id"`                 // イベントID
	BatchID   string         `json:"batch_id" db:"batch_id"`     // バッチID
	Type      BatchEventType `json:"type" db:"type"`             // イベント種別
	Actor     string         `json:"actor" db:"actor"`           // 操作者
	Detail    string         `json:"detail" db:"detail"`         // 詳細
	CreatedAt time.Time      `json:"created_at" db:"created_at"` // 発生日時
}

// BatchEventType defines types of batch lifecycle events
// バッチライフサイクルイベントの種別を定義
type BatchEventType string

const (
	BatchEventCreated        BatchEventType = "created"         // バッチ作成
	BatchEventQualityChecked BatchEventType = "quality_checked" // 品質検査記録
	BatchEventApproved       BatchEventType = "approved"        // 承認
	BatchEventDetailUpdated  BatchEventType = "detail_updated"  // 保管場所・備考の更新
)

// BatchFilter holds filter and pagination parameters for ListBatches
// ListBatches用のフィルタとページネーションパラメータを保持
type BatchFilter struct {
	Search       string       `json:"search"`        // バッチコードまたは商品名の部分一致
	Status       BatchStatus  `json:"status"`        // ステータスフィルタ
	ExpiryStatus ExpiryStatus `json:"expiry_status"` // 鮮度ステータスフィルタ（照会時に計算）
	ProductID    string       `json:"product_id"`    // 商品IDフィルタ
	SupplierID   string       `json:"supplier_id"`   // 仕入先IDフィルタ
	Page         int          `json:"page"`          // ページ番号（1始まり、範囲外はクランプ）
	PageSize     int          `json:"page_size"`     // ページサイズ
}

// BatchPage is one page of batch records with derived fields applied
// 導出フィールド適用済みのバッチ1ページ分を表現
type BatchPage struct {
	Batches    []Batch `json:"batches"`     // バッチ一覧
	TotalPages int     `json:"total_pages"` // 総ページ数
	TotalCount int64   `json:"total_count"` // 総件数
	Page       int     `json:"page"`        // 実際に返したページ番号
	PageSize   int     `json:"page_size"`   // ページサイズ
}

// ExpirySummary holds batch counts per expiry bucket
// 鮮度バケット別のバッチ件数を保持
type ExpirySummary struct {
	Expired         int64     `json:"expired"`          // 期限切れ
	ExpiringSoon    int64     `json:"expiring_soon"`    // 30日以内
	ExpiringWarning int64     `json:"expiring_warning"` // 31〜90日
	Good            int64     `json:"good"`             // 90日超
	Unknown         int64     `json:"unknown"`          // 期限未設定
	GeneratedAt     time.Time `json:"generated_at"`     // 集計日時
}

// NewBatchID generates a new batch ID
// 新しいバッチIDを生成
func NewBatchID() string {
	return uuid.New().String()
}

// NewEventID generates a new batch event ID
// 新しいバッチイベントIDを生成
func NewEventID() string {
	return uuid.New().String()
}

// GenerateBatchCode generates a system-assigned batch code
// システム採番のバッチコードを生成
func GenerateBatchCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("LOT-%s-%s", now.Format("20060102"), suffix)
}

// RefreshDerived recomputes all derived fields against the given time
// 指定時刻に対してすべての導出フィールドを再計算
func (b *Batch) RefreshDerived(now time.Time) {
	b.TotalCost = b.UnitCost.Mul(decimal.NewFromInt(b.Quantity))

	if b.ExpiryDate == nil {
		b.DaysUntilExpiry = nil
		b.ExpiryStatus = ExpiryStatusUnknown
		return
	}

	days := DaysUntilExpiry(*b.ExpiryDate, now)
	b.DaysUntilExpiry = &days
	b.ExpiryStatus = ClassifyExpiry(days)
}

// IsApproved reports whether the batch has been approved
// バッチが承認済みかを判定
func (b *Batch) IsApproved() bool {
	return b.ApprovedAt != nil
}

// HasPassedQualityCheck reports whether the latest quality check passed
// 最新の品質検査が合格かを判定
func (b *Batch) HasPassedQualityCheck() bool {
	return b.QualityCheck != nil && b.QualityCheck.Passed
}
