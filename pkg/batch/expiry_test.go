package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2026, 8, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"当日", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), 0},
		{"翌日", time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), 1},
		{"前日", time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), -1},
		{"30日後", time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), 30},
		{"時刻は無視される", time.Date(2026, 8, 2, 23, 59, 59, 0, time.UTC), 1},
		{"月またぎ", time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntilExpiry(tt.expiry, now))
		})
	}
}

func TestClassifyExpiry(t *testing.T) {
	tests := []struct {
		days int
		want ExpiryStatus
	}{
		{-100, ExpiryStatusExpired},
		{-1, ExpiryStatusExpired},
		{0, ExpiryStatusExpiringSoon}, // 当日期限はまだ期限切れではない
		{10, ExpiryStatusExpiringSoon},
		{30, ExpiryStatusExpiringSoon}, // 境界値
		{31, ExpiryStatusExpiringWarning},
		{60, ExpiryStatusExpiringWarning},
		{90, ExpiryStatusExpiringWarning}, // 境界値
		{91, ExpiryStatusGood},
		{200, ExpiryStatusGood},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyExpiry(tt.days), "days=%d", tt.days)
	}
}

func TestBatch_RefreshDerived(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("期限あり", func(t *testing.T) {
		expiry := now.AddDate(0, 0, 10)
		b := &Batch{Quantity: 100, ExpiryDate: &expiry}
		b.UnitCost = mustDecimal(t, "2.50")

		b.RefreshDerived(now)

		assert.True(t, b.TotalCost.Equal(mustDecimal(t, "250.00")))
		if assert.NotNil(t, b.DaysUntilExpiry) {
			assert.Equal(t, 10, *b.DaysUntilExpiry)
		}
		assert.Equal(t, ExpiryStatusExpiringSoon, b.ExpiryStatus)
	})

	t.Run("期限なし", func(t *testing.T) {
		b := &Batch{Quantity: 3}
		b.UnitCost = mustDecimal(t, "9.99")

		b.RefreshDerived(now)

		assert.True(t, b.TotalCost.Equal(mustDecimal(t, "29.97")))
		assert.Nil(t, b.DaysUntilExpiry)
		assert.Equal(t, ExpiryStatusUnknown, b.ExpiryStatus)
	})

	t.Run("期限切れは負の日数", func(t *testing.T) {
		expiry := now.AddDate(0, 0, -5)
		b := &Batch{Quantity: 1, ExpiryDate: &expiry}
		b.UnitCost = mustDecimal(t, "1")

		b.RefreshDerived(now)

		if assert.NotNil(t, b.DaysUntilExpiry) {
			assert.Equal(t, -5, *b.DaysUntilExpiry)
		}
		assert.Equal(t, ExpiryStatusExpired, b.ExpiryStatus)
	})
}

func TestValidExpiryStatus(t *testing.T) {
	for _, s := range []string{"expired", "expiring_soon", "expiring_warning", "good", "unknown"} {
		assert.True(t, ValidExpiryStatus(s), s)
	}
	assert.False(t, ValidExpiryStatus("fresh"))
	assert.False(t, ValidExpiryStatus(""))
}
