package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nemonet1337/lotGoFramework/pkg/batch"
)

// MemoryStorage is an in-memory Storage implementation for tests and examples
// テスト・サンプル用のインメモリStorage実装
type MemoryStorage struct {
	mu        sync.RWMutex
	batches   map[string]*batch.Batch
	codes     map[string]string // batch_code -> batch ID
	events    map[string][]batch.BatchEvent
	products  map[string]*batch.Product
	suppliers map[string]*batch.Supplier
}

var _ batch.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage
// 空のインメモリストレージを作成
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		batches:   make(map[string]*batch.Batch),
		codes:     make(map[string]string),
		events:    make(map[string][]batch.BatchEvent),
		products:  make(map[string]*batch.Product),
		suppliers: make(map[string]*batch.Supplier),
	}
}

// SeedProduct registers product reference data
// 商品参照データを登録
func (s *MemoryStorage) SeedProduct(p batch.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

// SeedSupplier registers supplier reference data
// 仕入先参照データを登録
func (s *MemoryStorage) SeedSupplier(sup batch.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[sup.ID] = &sup
}

func copyBatch(b *batch.Batch) *batch.Batch {
	cp := *b
	if b.ManufacturingDate != nil {
		t := *b.ManufacturingDate
		cp.ManufacturingDate = &t
	}
	if b.ExpiryDate != nil {
		t := *b.ExpiryDate
		cp.ExpiryDate = &t
	}
	if b.QualityCheck != nil {
		qc := *b.QualityCheck
		cp.QualityCheck = &qc
	}
	if b.ApprovedBy != nil {
		v := *b.ApprovedBy
		cp.ApprovedBy = &v
	}
	if b.ApprovedAt != nil {
		t := *b.ApprovedAt
		cp.ApprovedAt = &t
	}
	return &cp
}

// CreateBatch stores a new batch record
// 新しいバッチ記録を保存
func (s *MemoryStorage) CreateBatch(ctx context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[b.BatchCode]; exists {
		return batch.ErrDuplicateBatchCode
	}
	if _, exists := s.products[b.ProductID]; !exists {
		return batch.ErrProductNotFound
	}
	if _, exists := s.suppliers[b.SupplierID]; !exists {
		return batch.ErrSupplierNotFound
	}

	s.batches[b.ID] = copyBatch(b)
	s.codes[b.BatchCode] = b.ID
	return nil
}

// GetBatch retrieves a batch by ID
// IDでバッチを取得
func (s *MemoryStorage) GetBatch(ctx context.Context, batchID string) (*batch.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.batches[batchID]
	if !exists {
		return nil, batch.ErrBatchNotFound
	}
	return copyBatch(b), nil
}

// UpdateQualityCheck overwrites the quality check sub-record (last writer wins)
// 品質検査記録を上書き（後勝ち）
func (s *MemoryStorage) UpdateQualityCheck(ctx context.Context, batchID string, qc *batch.QualityCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.batches[batchID]
	if !exists {
		return batch.ErrBatchNotFound
	}
	record := *qc
	b.QualityCheck = &record
	return nil
}

// UpdateBatchDetails persists location/notes with optimistic locking
// 保管場所・備考を楽観的ロック付きで更新
func (s *MemoryStorage) UpdateBatchDetails(ctx context.Context, b *batch.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.batches[b.ID]
	if !exists {
		return batch.ErrBatchNotFound
	}
	if current.Version != b.Version-1 {
		return batch.ErrVersionMismatch
	}
	current.Location = b.Location
	current.Notes = b.Notes
	current.Version = b.Version
	return nil
}

// ApproveBatch performs the check-and-set pending->active transition and the
// product stock increment under one lock, so only the first caller succeeds.
// pending→activeのcheck-and-set遷移と商品在庫加算を1つのロック下で実行。
// 最初の呼び出しのみ成功する。
func (s *MemoryStorage) ApproveBatch(ctx context.Context, batchID, approvedBy string, approvedAt time.Time) (*batch.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.batches[batchID]
	if !exists {
		return nil, batch.ErrBatchNotFound
	}
	if b.Status != batch.BatchStatusPending {
		return nil, batch.ErrInvalidBatchState
	}
	p, exists := s.products[b.ProductID]
	if !exists {
		return nil, batch.ErrProductNotFound
	}

	b.Status = batch.BatchStatusActive
	by := approvedBy
	at := approvedAt
	b.ApprovedBy = &by
	b.ApprovedAt = &at
	b.Version++

	p.StockQuantity += b.Quantity
	p.UpdatedAt = approvedAt

	return copyBatch(b), nil
}

// ListBatches retrieves one page of batches matching the filter
// フィルタに一致するバッチを1ページ分取得
func (s *MemoryStorage) ListBatches(ctx context.Context, filter batch.BatchFilter, now time.Time) ([]batch.Batch, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*batch.Batch
	for _, b := range s.batches {
		if !s.matches(b, filter, now) {
			continue
		}
		matched = append(matched, b)
	}

	// 作成日時の降順、同時刻はIDで安定化
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]batch.Batch, 0, end-start)
	for _, b := range matched[start:end] {
		page = append(page, *copyBatch(b))
	}
	return page, total, nil
}

func (s *MemoryStorage) matches(b *batch.Batch, filter batch.BatchFilter, now time.Time) bool {
	if filter.Status != "" && b.Status != filter.Status {
		return false
	}
	if filter.ProductID != "" && b.ProductID != filter.ProductID {
		return false
	}
	if filter.SupplierID != "" && b.SupplierID != filter.SupplierID {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		productName := ""
		if p, exists := s.products[b.ProductID]; exists {
			productName = strings.ToLower(p.Name)
		}
		if !strings.Contains(strings.ToLower(b.BatchCode), needle) &&
			!strings.Contains(productName, needle) {
			return false
		}
	}
	if filter.ExpiryStatus != "" {
		status := batch.ExpiryStatusUnknown
		if b.ExpiryDate != nil {
			status = batch.ClassifyExpiry(batch.DaysUntilExpiry(*b.ExpiryDate, now))
		}
		if status != filter.ExpiryStatus {
			return false
		}
	}
	return true
}

// CreateEvent appends one audit event
// 監査イベントを1件追記
func (s *MemoryStorage) CreateEvent(ctx context.Context, ev *batch.BatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.BatchID] = append(s.events[ev.BatchID], *ev)
	return nil
}

// GetBatchHistory retrieves audit events for a batch, newest first
// バッチの監査イベントを新しい順に取得
func (s *MemoryStorage) GetBatchHistory(ctx context.Context, batchID string, limit int) ([]batch.BatchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[batchID]
	result := make([]batch.BatchEvent, len(events))
	copy(result, events)
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetProduct retrieves a product by ID
// IDで商品を取得
func (s *MemoryStorage) GetProduct(ctx context.Context, productID string) (*batch.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[productID]
	if !exists {
		return nil, batch.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// ListProducts retrieves product reference data sorted by name
// 商品参照データを名前順で取得
func (s *MemoryStorage) ListProducts(ctx context.Context, limit int) ([]batch.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]batch.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, *p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

// GetSupplier retrieves a supplier by ID
// IDで仕入先を取得
func (s *MemoryStorage) GetSupplier(ctx context.Context, supplierID string) (*batch.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, exists := s.suppliers[supplierID]
	if !exists {
		return nil, batch.ErrSupplierNotFound
	}
	cp := *sup
	return &cp, nil
}

// ListSuppliers retrieves supplier reference data sorted by name
// 仕入先参照データを名前順で取得
func (s *MemoryStorage) ListSuppliers(ctx context.Context, limit int) ([]batch.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]batch.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, *sup)
	}
	sort.Slice(suppliers, func(i, j int) bool {
		return suppliers[i].Name < suppliers[j].Name
	})
	if limit > 0 && len(suppliers) > limit {
		suppliers = suppliers[:limit]
	}
	return suppliers, nil
}

// Ping always succeeds for in-memory storage
// インメモリストレージでは常に成功
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage
// インメモリストレージでは何もしない
func (s *MemoryStorage) Close() error {
	return nil
}
