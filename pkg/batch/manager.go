package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Manager implements the BatchManager interface
// BatchManagerインターフェースの実装
type Manager struct {
	storage   Storage        // ストレージ層
	publisher EventPublisher // イベント発行者
	logger    *zap.Logger    // ログ
	config    *Config        // 設定
}

// すべてのインターフェースを実装することを明示
var (
	_ BatchManager  = (*Manager)(nil)
	_ CatalogReader = (*Manager)(nil)
)

// Config holds configuration for the batch lifecycle manager
// バッチライフサイクルマネージャーの設定を保持
type Config struct {
	RequirePassedQualityCheck bool `yaml:"require_passed_quality_check"` // 承認に合格検査を必須とするか
	NotesMaxLength            int  `yaml:"notes_max_length"`             // 備考・検査メモの最大文字数
	DefaultPageSize           int  `yaml:"default_page_size"`            // デフォルトページサイズ
	MaxPageSize               int  `yaml:"max_page_size"`                // 最大ページサイズ
	HistoryLimit              int  `yaml:"history_limit"`                // 履歴取得のデフォルト上限
}

// NewManager creates a new batch lifecycle manager
// 新しいバッチライフサイクルマネージャーを作成
func NewManager(storage Storage, publisher EventPublisher, logger *zap.Logger, config *Config) *Manager {
	if config == nil {
		config = &Config{
			RequirePassedQualityCheck: false,
			NotesMaxLength:            300,
			DefaultPageSize:           20,
			MaxPageSize:               100,
			HistoryLimit:              100,
		}
	}

	return &Manager{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// CreateBatch creates a new batch in pending status.
// No stock is added to the product until approval.
// 承認待ちステータスで新しいバッチを作成（承認までは商品在庫に加算しない）
func (m *Manager) CreateBatch(ctx context.Context, input CreateBatchInput) (*Batch, error) {
	if err := ValidateCreateBatchInput(input, m.config.NotesMaxLength); err != nil {
		return nil, err
	}

	// 商品と仕入先の存在確認
	if _, err := m.storage.GetProduct(ctx, input.ProductID); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, NewStorageError("get_product", "商品取得に失敗しました", err)
	}
	if _, err := m.storage.GetSupplier(ctx, input.SupplierID); err != nil {
		if errors.Is(err, ErrSupplierNotFound) {
			return nil, ErrSupplierNotFound
		}
		return nil, NewStorageError("get_supplier", "仕入先取得に失敗しました", err)
	}

	unitCost, err := ParseUnitCost(input.UnitCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	code := input.BatchCode
	if code == "" {
		code = GenerateBatchCode(now)
	}

	b := &Batch{
		ID:                NewBatchID(),
		BatchCode:         code,
		ProductID:         input.ProductID,
		SupplierID:        input.SupplierID,
		Quantity:          input.Quantity,
		RemainingQuantity: input.Quantity,
		UnitCost:          unitCost,
		ManufacturingDate: input.ManufacturingDate,
		ExpiryDate:        input.ExpiryDate,
		Status:            BatchStatusPending,
		Location:          input.Location,
		Notes:             input.Notes,
		CreatedBy:         ActorFromContext(ctx),
		CreatedAt:         now,
		Version:           1,
	}
	b.RefreshDerived(now)

	if err := m.storage.CreateBatch(ctx, b); err != nil {
		if errors.Is(err, ErrDuplicateBatchCode) {
			return nil, ErrDuplicateBatchCode
		}
		return nil, NewStorageError("create_batch", "バッチ作成に失敗しました", err)
	}

	// イベント発行
	if m.publisher != nil {
		event := BatchCreatedEvent{
			BatchID:    b.ID,
			BatchCode:  b.BatchCode,
			ProductID:  b.ProductID,
			SupplierID: b.SupplierID,
			Quantity:   b.Quantity,
			Timestamp:  now,
			UserID:     b.CreatedBy,
		}
		if err := m.publisher.PublishBatchCreated(ctx, event); err != nil {
			m.logger.Error("バッチ作成イベント発行に失敗しました", zap.Error(err))
		}
	}

	m.recordEvent(ctx, b.ID, BatchEventCreated, b.CreatedBy,
		fmt.Sprintf("バッチ %s を作成 (数量: %d)", b.BatchCode, b.Quantity))

	batchesCreatedTotal.Inc()

	m.logger.Info("バッチ作成完了",
		zap.String("batch_id", b.ID),
		zap.String("batch_code", b.BatchCode),
		zap.String("product_id", b.ProductID),
		zap.String("supplier_id", b.SupplierID),
		zap.Int64("quantity", b.Quantity),
		zap.String("total_cost", b.TotalCost.String()),
	)

	return b, nil
}

// RecordQualityCheck overwrites the batch's quality check sub-record.
// Repeated calls replace the prior result; no history accumulates here
// (re-inspection support). Status and remaining quantity are untouched.
// バッチの品質検査記録を上書きする。再検査では前回結果を置き換える。
func (m *Manager) RecordQualityCheck(ctx context.Context, batchID string, passed bool, notes string) (*Batch, error) {
	if err := ValidateBatchID(batchID); err != nil {
		return nil, err
	}
	if err := ValidateNotes(notes, m.config.NotesMaxLength); err != nil {
		return nil, err
	}

	now := time.Now()
	qc := &QualityCheck{
		Passed:    passed,
		CheckedBy: ActorFromContext(ctx),
		CheckedAt: now,
		Notes:     notes,
	}

	if err := m.storage.UpdateQualityCheck(ctx, batchID, qc); err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, NewStorageError("update_quality_check", "品質検査記録の更新に失敗しました", err)
	}

	b, err := m.storage.GetBatch(ctx, batchID)
	if err != nil {
		return nil, NewStorageError("get_batch", "バッチ取得に失敗しました", err)
	}
	b.RefreshDerived(now)

	// イベント発行
	if m.publisher != nil {
		event := QualityCheckRecordedEvent{
			BatchID:   batchID,
			Passed:    passed,
			Timestamp: now,
			UserID:    qc.CheckedBy,
		}
		if err := m.publisher.PublishQualityCheckRecorded(ctx, event); err != nil {
			m.logger.Error("品質検査イベント発行に失敗しました", zap.Error(err))
		}
	}

	m.recordEvent(ctx, batchID, BatchEventQualityChecked, qc.CheckedBy,
		fmt.Sprintf("品質検査を記録 (結果: %s)", qcResultLabel(passed)))

	qualityChecksTotal.WithLabelValues(qcResultLabel(passed)).Inc()

	m.logger.Info("品質検査記録完了",
		zap.String("batch_id", batchID),
		zap.Bool("passed", passed),
		zap.String("checked_by", qc.CheckedBy),
	)

	return b, nil
}

// ApproveBatch transitions a pending batch to active exactly once and adds the
// batch quantity to the product's usable stock. The transition is conditional
// on the stored status still being pending; the loser of a concurrent race
// receives ErrInvalidBatchState instead of silently succeeding, so the stock
// increment can never double-apply.
// 承認待ちバッチを一度だけactiveに遷移させ、商品在庫に数量を加算する。
// 遷移は保存済みステータスがpendingである場合のみ成立し、競合の敗者には
// ErrInvalidBatchStateを返す（在庫の二重加算を防ぐ）。
func (m *Manager) ApproveBatch(ctx context.Context, batchID string) (*Batch, error) {
	if err := ValidateBatchID(batchID); err != nil {
		return nil, err
	}

	// 品質検査ゲート（設定で有効な場合のみ）。最終判定はストレージ側の
	// 条件付き更新が行うため、ここは事前チェックにすぎない。
	if m.config.RequirePassedQualityCheck {
		current, err := m.storage.GetBatch(ctx, batchID)
		if err != nil {
			if errors.Is(err, ErrBatchNotFound) {
				return nil, ErrBatchNotFound
			}
			return nil, NewStorageError("get_batch", "バッチ取得に失敗しました", err)
		}
		if !current.HasPassedQualityCheck() {
			return nil, ErrQualityCheckRequired
		}
	}

	now := time.Now()
	actor := ActorFromContext(ctx)

	b, err := m.storage.ApproveBatch(ctx, batchID, actor, now)
	if err != nil {
		switch {
		case errors.Is(err, ErrBatchNotFound):
			return nil, ErrBatchNotFound
		case errors.Is(err, ErrInvalidBatchState):
			approvalConflictsTotal.Inc()
			m.logger.Warn("承認が拒否されました（承認待ち状態ではありません）",
				zap.String("batch_id", batchID),
				zap.String("actor", actor),
			)
			return nil, ErrInvalidBatchState
		default:
			return nil, NewStorageError("approve_batch", "バッチ承認に失敗しました", err)
		}
	}
	b.RefreshDerived(now)

	// イベント発行
	if m.publisher != nil {
		event := BatchApprovedEvent{
			BatchID:     b.ID,
			ProductID:   b.ProductID,
			QuantityAdd: b.Quantity,
			Timestamp:   now,
			UserID:      actor,
		}
		if err := m.publisher.PublishBatchApproved(ctx, event); err != nil {
			m.logger.Error("承認イベント発行に失敗しました", zap.Error(err))
		}
	}

	m.recordEvent(ctx, b.ID, BatchEventApproved, actor,
		fmt.Sprintf("バッチを承認、商品 %s の在庫に %d を加算", b.ProductID, b.Quantity))

	batchesApprovedTotal.Inc()

	m.logger.Info("バッチ承認完了",
		zap.String("batch_id", b.ID),
		zap.String("product_id", b.ProductID),
		zap.Int64("quantity_added", b.Quantity),
		zap.String("approved_by", actor),
	)

	return b, nil
}

// UpdateBatchDetails updates the mutable detail fields (location, notes).
// Immutable fields and the quality check sub-record are not touched here.
// 可変フィールド（保管場所・備考）を更新する。不変フィールドには触れない。
func (m *Manager) UpdateBatchDetails(ctx context.Context, batchID string, location, notes *string) (*Batch, error) {
	if err := ValidateBatchID(batchID); err != nil {
		return nil, err
	}
	if location == nil && notes == nil {
		return nil, NewValidationError("body", "更新対象のフィールドが指定されていません", "")
	}

	b, err := m.storage.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, NewStorageError("get_batch", "バッチ取得に失敗しました", err)
	}

	if location != nil {
		if err := ValidateLocation(*location); err != nil {
			return nil, err
		}
		b.Location = *location
	}
	if notes != nil {
		if err := ValidateNotes(*notes, m.config.NotesMaxLength); err != nil {
			return nil, err
		}
		b.Notes = *notes
	}
	b.Version++

	if err := m.storage.UpdateBatchDetails(ctx, b); err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			return nil, NewConcurrencyError("update_details", batchID, "バッチが他のユーザーによって更新されています")
		}
		return nil, NewStorageError("update_batch_details", "バッチ更新に失敗しました", err)
	}

	actor := ActorFromContext(ctx)
	m.recordEvent(ctx, batchID, BatchEventDetailUpdated, actor, "保管場所・備考を更新")

	m.logger.Info("バッチ詳細更新完了",
		zap.String("batch_id", batchID),
		zap.String("actor", actor),
	)

	b.RefreshDerived(time.Now())
	return b, nil
}

// GetBatch retrieves a single batch with derived fields applied
// 導出フィールド適用済みのバッチを1件取得
func (m *Manager) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	if err := ValidateBatchID(batchID); err != nil {
		return nil, err
	}

	b, err := m.storage.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, NewStorageError("get_batch", "バッチ取得に失敗しました", err)
	}

	b.RefreshDerived(time.Now())
	return b, nil
}

// ListBatches returns one page of batches matching the filter. The expiry
// bucket filter is evaluated against the current date at query time. Invalid
// page numbers clamp to the valid range instead of erroring.
// フィルタに一致するバッチを1ページ分返す。鮮度フィルタは照会時の現在日付で
// 評価する。範囲外のページ番号はエラーにせずクランプする。
func (m *Manager) ListBatches(ctx context.Context, filter BatchFilter) (*BatchPage, error) {
	if filter.Status != "" && !ValidBatchStatus(string(filter.Status)) {
		return nil, NewValidationError("status", "無効なステータスです", string(filter.Status))
	}
	if filter.ExpiryStatus != "" && !ValidExpiryStatus(string(filter.ExpiryStatus)) {
		return nil, NewValidationError("expiry_status", "無効な鮮度ステータスです", string(filter.ExpiryStatus))
	}

	if filter.PageSize <= 0 {
		filter.PageSize = m.config.DefaultPageSize
	}
	if filter.PageSize > m.config.MaxPageSize {
		filter.PageSize = m.config.MaxPageSize
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	now := time.Now()
	items, total, err := m.storage.ListBatches(ctx, filter, now)
	if err != nil {
		return nil, NewStorageError("list_batches", "バッチ一覧取得に失敗しました", err)
	}

	totalPages := int((total + int64(filter.PageSize) - 1) / int64(filter.PageSize))

	// 最終ページを超えたページ番号は最終ページにクランプして再照会
	if len(items) == 0 && total > 0 && filter.Page > totalPages {
		filter.Page = totalPages
		items, total, err = m.storage.ListBatches(ctx, filter, now)
		if err != nil {
			return nil, NewStorageError("list_batches", "バッチ一覧取得に失敗しました", err)
		}
	}

	// 該当0件のときはページ番号を1にクランプ
	if total == 0 {
		filter.Page = 1
	}

	for i := range items {
		items[i].RefreshDerived(now)
	}

	return &BatchPage{
		Batches:    items,
		TotalPages: totalPages,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}

// GetBatchHistory retrieves the audit history of a batch
// バッチの監査履歴を取得
func (m *Manager) GetBatchHistory(ctx context.Context, batchID string, limit int) ([]BatchEvent, error) {
	if err := ValidateBatchID(batchID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.config.HistoryLimit
	}

	// バッチの存在確認
	if _, err := m.storage.GetBatch(ctx, batchID); err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, NewStorageError("get_batch", "バッチ取得に失敗しました", err)
	}

	events, err := m.storage.GetBatchHistory(ctx, batchID, limit)
	if err != nil {
		return nil, NewStorageError("get_batch_history", "バッチ履歴取得に失敗しました", err)
	}

	return events, nil
}

// GetExpirySummary counts batches per expiry bucket for dashboard cards
// ダッシュボード用に鮮度バケット別のバッチ件数を集計
func (m *Manager) GetExpirySummary(ctx context.Context) (*ExpirySummary, error) {
	now := time.Now()
	summary := &ExpirySummary{GeneratedAt: now}

	buckets := []struct {
		status ExpiryStatus
		target *int64
	}{
		{ExpiryStatusExpired, &summary.Expired},
		{ExpiryStatusExpiringSoon, &summary.ExpiringSoon},
		{ExpiryStatusExpiringWarning, &summary.ExpiringWarning},
		{ExpiryStatusGood, &summary.Good},
		{ExpiryStatusUnknown, &summary.Unknown},
	}

	for _, bucket := range buckets {
		filter := BatchFilter{ExpiryStatus: bucket.status, Page: 1, PageSize: 1}
		_, total, err := m.storage.ListBatches(ctx, filter, now)
		if err != nil {
			return nil, NewStorageError("list_batches", "鮮度集計に失敗しました", err)
		}
		*bucket.target = total
	}

	return summary, nil
}

// GetProduct retrieves a product reference record
// 商品参照データを取得
func (m *Manager) GetProduct(ctx context.Context, productID string) (*Product, error) {
	return m.storage.GetProduct(ctx, productID)
}

// ListProducts retrieves product reference data for the create-batch form
// バッチ作成フォーム用の商品参照データ一覧を取得
func (m *Manager) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = m.config.MaxPageSize
	}
	return m.storage.ListProducts(ctx, limit)
}

// GetSupplier retrieves a supplier reference record
// 仕入先参照データを取得
func (m *Manager) GetSupplier(ctx context.Context, supplierID string) (*Supplier, error) {
	return m.storage.GetSupplier(ctx, supplierID)
}

// ListSuppliers retrieves supplier reference data for the create-batch form
// バッチ作成フォーム用の仕入先参照データ一覧を取得
func (m *Manager) ListSuppliers(ctx context.Context, limit int) ([]Supplier, error) {
	if limit <= 0 {
		limit = m.config.MaxPageSize
	}
	return m.storage.ListSuppliers(ctx, limit)
}

// recordEvent appends an audit event, logging failures without propagating
// 監査イベントを追記する（失敗はログのみで伝播しない）
func (m *Manager) recordEvent(ctx context.Context, batchID string, eventType BatchEventType, actor, detail string) {
	ev := &BatchEvent{
		ID:        NewEventID(),
		BatchID:   batchID,
		Type:      eventType,
		Actor:     actor,
		Detail:    detail,
		CreatedAt: time.Now(),
	}

	if err := m.storage.CreateEvent(ctx, ev); err != nil {
		m.logger.Error("監査イベント記録に失敗しました",
			zap.String("batch_id", batchID),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
}
