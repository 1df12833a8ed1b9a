package batch

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestValidateProductID(t *testing.T) {
	assert.NoError(t, ValidateProductID("prod-001"))
	assert.NoError(t, ValidateProductID("abc_DEF-123"))

	assert.Error(t, ValidateProductID(""))
	assert.Error(t, ValidateProductID("   "))
	assert.Error(t, ValidateProductID("id with spaces"))
	assert.Error(t, ValidateProductID(strings.Repeat("a", MaxIDLength+1)))
}

func TestValidateBatchCode(t *testing.T) {
	// 空はシステム採番を意味するので許可
	assert.NoError(t, ValidateBatchCode(""))
	assert.NoError(t, ValidateBatchCode("LOT-20260801-AB12CD34"))
	assert.NoError(t, ValidateBatchCode("lot.2026_08"))

	assert.Error(t, ValidateBatchCode("LOT 001"))
	assert.Error(t, ValidateBatchCode(strings.Repeat("X", MaxBatchCodeLength+1)))
}

func TestValidateQuantity(t *testing.T) {
	assert.NoError(t, ValidateQuantity(1))
	assert.NoError(t, ValidateQuantity(MaxQuantity))

	assert.Error(t, ValidateQuantity(0))
	assert.Error(t, ValidateQuantity(-1))
	assert.Error(t, ValidateQuantity(MaxQuantity+1))
}

func TestParseUnitCost(t *testing.T) {
	cost, err := ParseUnitCost("2.50")
	require.NoError(t, err)
	assert.True(t, cost.Equal(mustDecimal(t, "2.5")))

	// ゼロ単価は許可（サンプル品など）
	cost, err = ParseUnitCost("0")
	require.NoError(t, err)
	assert.True(t, cost.IsZero())

	// 2桁を超える小数も10進数のまま保持される
	cost, err = ParseUnitCost("0.125")
	require.NoError(t, err)
	assert.Equal(t, "0.125", cost.String())

	_, err = ParseUnitCost("")
	assert.Error(t, err)
	_, err = ParseUnitCost("abc")
	assert.Error(t, err)
	_, err = ParseUnitCost("-1.00")
	assert.Error(t, err)
	_, err = ParseUnitCost("100000000")
	assert.Error(t, err)
}

func TestValidateDates(t *testing.T) {
	mfg := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.NoError(t, ValidateDates(&mfg, &expiry))
	// 片方だけ、または両方未指定は順序チェック対象外
	assert.NoError(t, ValidateDates(nil, &expiry))
	assert.NoError(t, ValidateDates(&mfg, nil))
	assert.NoError(t, ValidateDates(nil, nil))

	assert.Error(t, ValidateDates(&expiry, &mfg))
	assert.Error(t, ValidateDates(&mfg, &mfg)) // 同一日付も拒否
}

func TestValidateNotes(t *testing.T) {
	assert.NoError(t, ValidateNotes("", 300))
	assert.NoError(t, ValidateNotes(strings.Repeat("あ", 300), 300)) // 文字数で判定（バイト数ではない）
	assert.Error(t, ValidateNotes(strings.Repeat("あ", 301), 300))
}

func TestValidateCreateBatchInput(t *testing.T) {
	valid := CreateBatchInput{
		ProductID:  "prod-001",
		SupplierID: "sup-001",
		Quantity:   100,
		UnitCost:   "2.50",
	}
	assert.NoError(t, ValidateCreateBatchInput(valid, 300))

	invalid := valid
	invalid.SupplierID = ""
	err := ValidateCreateBatchInput(invalid, 300)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "supplier_id", ve.Field)
}

func TestGenerateBatchCode(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	code := GenerateBatchCode(now)

	assert.True(t, strings.HasPrefix(code, "LOT-20260801-"))
	assert.NoError(t, ValidateBatchCode(code))
	// 採番は毎回異なる
	assert.NotEqual(t, code, GenerateBatchCode(now))
}
