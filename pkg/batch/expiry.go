package batch

import "time"

// ExpiryStatus is a derived freshness classification, never persisted
// 導出される鮮度分類（永続化しない）
type ExpiryStatus string

const (
	ExpiryStatusExpired         ExpiryStatus = "expired"          // 期限切れ
	ExpiryStatusExpiringSoon    ExpiryStatus = "expiring_soon"    // 30日以内に期限切れ
	ExpiryStatusExpiringWarning ExpiryStatus = "expiring_warning" // 31〜90日で期限切れ
	ExpiryStatusGood            ExpiryStatus = "good"             // 90日超
	ExpiryStatusUnknown         ExpiryStatus = "unknown"          // 有効期限未設定
)

// 鮮度バケットの境界値（日数）
const (
	ExpirySoonDays    = 30
	ExpiryWarningDays = 90
)

// ValidExpiryStatus reports whether s is a known expiry status
// sが既知の鮮度ステータスかを判定
func ValidExpiryStatus(s string) bool {
	switch ExpiryStatus(s) {
	case ExpiryStatusExpired, ExpiryStatusExpiringSoon, ExpiryStatusExpiringWarning,
		ExpiryStatusGood, ExpiryStatusUnknown:
		return true
	}
	return false
}

// DaysUntilExpiry returns the whole-day difference between expiry and now.
// Both timestamps are truncated to calendar days (UTC) so bucket boundaries
// land exactly on day counts. The result is negative once the date has passed.
// 有効期限と現在時刻の日数差を返す。両時刻をUTCの暦日に切り詰めてから差を取る。
func DaysUntilExpiry(expiry, now time.Time) int {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	n := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(n).Hours() / 24)
}

// ClassifyExpiry maps a day count to its freshness bucket.
// Pure function so dashboards and storage filters share one definition.
// 日数を鮮度バケットに分類する純関数。
func ClassifyExpiry(daysUntilExpiry int) ExpiryStatus {
	switch {
	case daysUntilExpiry < 0:
		return ExpiryStatusExpired
	case daysUntilExpiry <= ExpirySoonDays:
		return ExpiryStatusExpiringSoon
	case daysUntilExpiry <= ExpiryWarningDays:
		return ExpiryStatusExpiringWarning
	default:
		return ExpiryStatusGood
	}
}
