package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nemonet1337/lotGoFramework/pkg/batch"
)

func newSeededStorage(t *testing.T) *MemoryStorage {
	t.Helper()

	s := NewMemoryStorage()
	now := time.Now().UTC()
	s.SeedProduct(batch.Product{
		ID:            "prod-001",
		Name:          "ビタミンCセラム",
		SKU:           "VC-SERUM-30",
		Category:      "skincare",
		StockQuantity: 0,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	s.SeedSupplier(batch.Supplier{
		ID:           "sup-001",
		Name:         "東京コスメ商事",
		ContactEmail: "orders@tokyo-cosme.example.com",
		IsActive:     true,
		CreatedAt:    now,
	})
	return s
}

func pendingBatch(id, code string, quantity int64) *batch.Batch {
	unitCost := decimal.RequireFromString("2.50")
	return &batch.Batch{
		ID:                id,
		BatchCode:         code,
		ProductID:         "prod-001",
		SupplierID:        "sup-001",
		Quantity:          quantity,
		RemainingQuantity: quantity,
		UnitCost:          unitCost,
		TotalCost:         unitCost.Mul(decimal.NewFromInt(quantity)),
		Status:            batch.BatchStatusPending,
		CreatedBy:         "system",
		CreatedAt:         time.Now().UTC(),
		Version:           1,
	}
}

func TestMemoryStorage_CreateAndGetBatch(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()

	b := pendingBatch("batch-001", "LOT-20260801-AAAA0001", 100)
	require.NoError(t, s.CreateBatch(ctx, b))

	got, err := s.GetBatch(ctx, "batch-001")
	require.NoError(t, err)
	assert.Equal(t, "LOT-20260801-AAAA0001", got.BatchCode)
	assert.Equal(t, batch.BatchStatusPending, got.Status)
	assert.True(t, got.TotalCost.Equal(decimal.RequireFromString("250.00")))

	_, err = s.GetBatch(ctx, "no-such-batch")
	assert.ErrorIs(t, err, batch.ErrBatchNotFound)
}

func TestMemoryStorage_CreateBatch_DuplicateCode(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBatch(ctx, pendingBatch("batch-001", "LOT-DUP", 10)))
	err := s.CreateBatch(ctx, pendingBatch("batch-002", "LOT-DUP", 20))
	assert.ErrorIs(t, err, batch.ErrDuplicateBatchCode)
}

func TestMemoryStorage_CreateBatch_UnknownReferences(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()

	b := pendingBatch("batch-001", "LOT-X1", 10)
	b.ProductID = "no-such-product"
	assert.ErrorIs(t, s.CreateBatch(ctx, b), batch.ErrProductNotFound)

	b2 := pendingBatch("batch-002", "LOT-X2", 10)
	b2.SupplierID = "no-such-supplier"
	assert.ErrorIs(t, s.CreateBatch(ctx, b2), batch.ErrSupplierNotFound)
}

func TestMemoryStorage_ApproveBatch(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBatch(ctx, pendingBatch("batch-001", "LOT-A1", 100)))

	// 既存在庫50に承認で100が加算される
	p0, err := s.GetProduct(ctx, "prod-001")
	require.NoError(t, err)
	p0.StockQuantity = 50
	s.SeedProduct(*p0)

	approvedAt := time.Now().UTC()
	got, err := s.ApproveBatch(ctx, "batch-001", "user-42", approvedAt)
	require.NoError(t, err)
	assert.Equal(t, batch.BatchStatusActive, got.Status)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, "user-42", *got.ApprovedBy)
	assert.Equal(t, int64(2), got.Version)

	p, err := s.GetProduct(ctx, "prod-001")
	require.NoError(t, err)
	assert.Equal(t, int64(150), p.StockQuantity)

	// 2回目の承認は拒否され、在庫は変わらない
	_, err = s.ApproveBatch(ctx, "batch-001", "user-43", time.Now().UTC())
	assert.ErrorIs(t, err, batch.ErrInvalidBatchState)

	p, err = s.GetProduct(ctx, "prod-001")
	require.NoError(t, err)
	assert.Equal(t, int64(150), p.StockQuantity)
}

func TestMemoryStorage_ApproveBatch_Concurrent(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBatch(ctx, pendingBatch("batch-001", "LOT-C1", 50)))

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = s.ApproveBatch(ctx, "batch-001", "user-42", time.Now().UTC())
		}(i)
	}
	wg.Wait()

	successes := 0
	conflicts := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case err == batch.ErrInvalidBatchState:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// 勝者は1人だけ、在庫加算も1回だけ
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, conflicts)

	p, err := s.GetProduct(ctx, "prod-001")
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.StockQuantity)
}

func TestMemoryStorage_UpdateQualityCheck_Overwrite(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBatch(ctx, pendingBatch("batch-001", "LOT-Q1", 10)))

	first := &batch.QualityCheck{Passed: false, CheckedBy: "inspector-1", CheckedAt: time.Now().UTC(), Notes: "容器に傷あり"}
	require.NoError(t, s.UpdateQualityCheck(ctx, "batch-001", first))

	second := &batch.QualityCheck{Passed: true, CheckedBy: "inspector-2", CheckedAt: time.Now().UTC(), Notes: "再検査で問題なし"}
	require.NoError(t, s.UpdateQualityCheck(ctx, "batch-001", second))

	got, err := s.GetBatch(ctx, "batch-001")
	require.NoError(t, err)
	require.NotNil(t, got.QualityCheck)
	assert.True(t, got.QualityCheck.Passed)
	assert.Equal(t, "inspector-2", got.QualityCheck.CheckedBy)

	err = s.UpdateQualityCheck(ctx, "no-such-batch", second)
	assert.ErrorIs(t, err, batch.ErrBatchNotFound)
}

func TestMemoryStorage_UpdateBatchDetails_VersionMismatch(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBatch(ctx, pendingBatch("batch-001", "LOT-V1", 10)))

	b, err := s.GetBatch(ctx, "batch-001")
	require.NoError(t, err)
	b.Location = "倉庫A-3"
	b.Version = 2
	require.NoError(t, s.UpdateBatchDetails(ctx, b))

	// 古いバージョンに基づく更新は拒否
	stale := *b
	stale.Version = 2
	assert.ErrorIs(t, s.UpdateBatchDetails(ctx, &stale), batch.ErrVersionMismatch)

	got, err := s.GetBatch(ctx, "batch-001")
	require.NoError(t, err)
	assert.Equal(t, "倉庫A-3", got.Location)
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStorage_ListBatches_Filters(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	expired := pendingBatch("batch-exp", "LOT-EXPIRED", 10)
	d1 := now.AddDate(0, 0, -5)
	expired.ExpiryDate = &d1

	soon := pendingBatch("batch-soon", "LOT-SOON", 10)
	d2 := now.AddDate(0, 0, 10)
	soon.ExpiryDate = &d2

	good := pendingBatch("batch-good", "LOT-GOOD", 10)
	d3 := now.AddDate(0, 0, 200)
	good.ExpiryDate = &d3

	unknown := pendingBatch("batch-unknown", "LOT-UNKNOWN", 10)

	for _, b := range []*batch.Batch{expired, soon, good, unknown} {
		require.NoError(t, s.CreateBatch(ctx, b))
	}

	list := func(filter batch.BatchFilter) []batch.Batch {
		filter.Page = 1
		filter.PageSize = 20
		batches, _, err := s.ListBatches(ctx, filter, now)
		require.NoError(t, err)
		return batches
	}

	got := list(batch.BatchFilter{ExpiryStatus: batch.ExpiryStatusExpired})
	require.Len(t, got, 1)
	assert.Equal(t, "batch-exp", got[0].ID)

	got = list(batch.BatchFilter{ExpiryStatus: batch.ExpiryStatusExpiringSoon})
	require.Len(t, got, 1)
	assert.Equal(t, "batch-soon", got[0].ID)

	got = list(batch.BatchFilter{ExpiryStatus: batch.ExpiryStatusUnknown})
	require.Len(t, got, 1)
	assert.Equal(t, "batch-unknown", got[0].ID)

	// バッチコードの部分一致（大文字小文字を区別しない）
	got = list(batch.BatchFilter{Search: "lot-good"})
	require.Len(t, got, 1)
	assert.Equal(t, "batch-good", got[0].ID)

	// 商品名の部分一致
	got = list(batch.BatchFilter{Search: "セラム"})
	assert.Len(t, got, 4)

	got = list(batch.BatchFilter{Search: "該当なし"})
	assert.Empty(t, got)
}

func TestMemoryStorage_ListBatches_Pagination(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		b := pendingBatch(
			string(rune('a'+i))+"-batch",
			"LOT-PAGE-"+string(rune('A'+i)),
			10,
		)
		b.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.CreateBatch(ctx, b))
	}

	batches, total, err := s.ListBatches(ctx, batch.BatchFilter{Page: 1, PageSize: 2}, base)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, batches, 2)
	// 作成日時の降順
	assert.Equal(t, "e-batch", batches[0].ID)
	assert.Equal(t, "d-batch", batches[1].ID)

	batches, _, err = s.ListBatches(ctx, batch.BatchFilter{Page: 3, PageSize: 2}, base)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "a-batch", batches[0].ID)

	// 範囲外ページは空（クランプはマネージャー側の責務）
	batches, total, err = s.ListBatches(ctx, batch.BatchFilter{Page: 10, PageSize: 2}, base)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, batches)
}

func TestMemoryStorage_BatchHistory(t *testing.T) {
	s := newSeededStorage(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateBatch(ctx, pendingBatch("batch-001", "LOT-H1", 10)))

	types := []batch.BatchEventType{batch.BatchEventCreated, batch.BatchEventQualityChecked, batch.BatchEventApproved}
	for i, et := range types {
		require.NoError(t, s.CreateEvent(ctx, &batch.BatchEvent{
			ID:        batch.NewEventID(),
			BatchID:   "batch-001",
			Type:      et,
			Actor:     "system",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := s.GetBatchHistory(ctx, "batch-001", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	// 新しい順
	assert.Equal(t, batch.BatchEventApproved, events[0].Type)
	assert.Equal(t, batch.BatchEventCreated, events[2].Type)

	events, err = s.GetBatchHistory(ctx, "batch-001", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
