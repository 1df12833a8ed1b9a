package batch

import (
	"context"
	"time"
)

// BatchManager defines the core interface for batch lifecycle management
// バッチライフサイクル管理のコアインターフェースを定義
type BatchManager interface {
	// ライフサイクル操作 - Lifecycle operations
	CreateBatch(ctx context.Context, input CreateBatchInput) (*Batch, error)
	RecordQualityCheck(ctx context.Context, batchID string, passed bool, notes string) (*Batch, error)
	ApproveBatch(ctx context.Context, batchID string) (*Batch, error)
	UpdateBatchDetails(ctx context.Context, batchID string, location, notes *string) (*Batch, error)

	// 照会 - Queries
	GetBatch(ctx context.Context, batchID string) (*Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) (*BatchPage, error)
	GetBatchHistory(ctx context.Context, batchID string, limit int) ([]BatchEvent, error)
	GetExpirySummary(ctx context.Context) (*ExpirySummary, error)
}

// CatalogReader defines read-only access to collaborator reference data
// 参照データ（商品・仕入先）への読み取り専用アクセスを定義
type CatalogReader interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
	GetSupplier(ctx context.Context, supplierID string) (*Supplier, error)
	ListSuppliers(ctx context.Context, limit int) ([]Supplier, error)
}

// CreateBatchInput holds the validated inputs for batch creation
// バッチ作成の入力値を保持
type CreateBatchInput struct {
	BatchCode         string     `json:"batch_code"`         // 空ならシステム採番
	ProductID         string     `json:"product_id"`         // 必須
	SupplierID        string     `json:"supplier_id"`        // 必須
	Quantity          int64      `json:"quantity"`           // 正の整数
	UnitCost          string     `json:"unit_cost"`          // 10進文字列、0以上
	ManufacturingDate *time.Time `json:"manufacturing_date"` // 任意
	ExpiryDate        *time.Time `json:"expiry_date"`        // 任意（製造日より後）
	Location          string     `json:"location"`           // 任意
	Notes             string     `json:"notes"`              // 任意
}

// Storage defines the interface for the data persistence layer
// データ永続化層のインターフェースを定義
type Storage interface {
	// Batch operations
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, batchID string) (*Batch, error)
	// UpdateQualityCheck overwrites the quality check sub-record (last writer wins)
	UpdateQualityCheck(ctx context.Context, batchID string, qc *QualityCheck) error
	// UpdateBatchDetails persists location/notes with optimistic locking on version
	UpdateBatchDetails(ctx context.Context, b *Batch) error
	// ApproveBatch performs the conditional pending->active transition and the
	// product stock increment atomically; losers receive ErrInvalidBatchState
	ApproveBatch(ctx context.Context, batchID, approvedBy string, approvedAt time.Time) (*Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter, now time.Time) ([]Batch, int64, error)

	// Audit history
	CreateEvent(ctx context.Context, ev *BatchEvent) error
	GetBatchHistory(ctx context.Context, batchID string, limit int) ([]BatchEvent, error)

	// Reference data
	GetProduct(ctx context.Context, productID string) (*Product, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
	GetSupplier(ctx context.Context, supplierID string) (*Supplier, error)
	ListSuppliers(ctx context.Context, limit int) ([]Supplier, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher defines interface for publishing batch lifecycle events
// バッチライフサイクルイベント発行のインターフェースを定義
type EventPublisher interface {
	PublishBatchCreated(ctx context.Context, event BatchCreatedEvent) error
	PublishQualityCheckRecorded(ctx context.Context, event QualityCheckRecordedEvent) error
	PublishBatchApproved(ctx context.Context, event BatchApprovedEvent) error
}

// Events for batch lifecycle operations
// バッチライフサイクル操作のイベント定義

// BatchCreatedEvent represents a newly created batch
// バッチ作成イベントを表現
type BatchCreatedEvent struct {
	BatchID    string    `json:"batch_id"`
	BatchCode  string    `json:"batch_code"`
	ProductID  string    `json:"product_id"`
	SupplierID string    `json:"supplier_id"`
	Quantity   int64     `json:"quantity"`
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"user_id"`
}

// QualityCheckRecordedEvent represents a recorded quality check
// 品質検査記録イベントを表現
type QualityCheckRecordedEvent struct {
	BatchID   string    `json:"batch_id"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
}

// BatchApprovedEvent represents the one-time approval of a batch
// バッチ承認イベントを表現（在庫加算を伴うため一度だけ発生）
type BatchApprovedEvent struct {
	BatchID     string    `json:"batch_id"`
	ProductID   string    `json:"product_id"`
	QuantityAdd int64     `json:"quantity_add"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id"`
}
