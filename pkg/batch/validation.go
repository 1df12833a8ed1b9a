package batch

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// バリデーション上限値
const (
	MaxIDLength        = 255
	MaxBatchCodeLength = 64
	MaxLocationLength  = 255
	MaxQuantity        = 999999999
)

var (
	idPattern        = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	batchCodePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateProductID 商品参照をバリデーション（未選択のセンチネル値は拒否）
func ValidateProductID(productID string) error {
	if strings.TrimSpace(productID) == "" {
		return NewValidationError("product_id", "商品IDが指定されていません", productID)
	}
	if len(productID) > MaxIDLength {
		return NewValidationError("product_id", "商品IDが長すぎます", productID)
	}
	if !idPattern.MatchString(productID) {
		return NewValidationError("product_id", "商品IDに無効な文字が含まれています", productID)
	}
	return nil
}

// ValidateSupplierID 仕入先参照をバリデーション
func ValidateSupplierID(supplierID string) error {
	if strings.TrimSpace(supplierID) == "" {
		return NewValidationError("supplier_id", "仕入先IDが指定されていません", supplierID)
	}
	if len(supplierID) > MaxIDLength {
		return NewValidationError("supplier_id", "仕入先IDが長すぎます", supplierID)
	}
	if !idPattern.MatchString(supplierID) {
		return NewValidationError("supplier_id", "仕入先IDに無効な文字が含まれています", supplierID)
	}
	return nil
}

// ValidateBatchID バッチIDをバリデーション
func ValidateBatchID(batchID string) error {
	if batchID == "" {
		return NewValidationError("batch_id", "バッチIDが指定されていません", batchID)
	}
	if len(batchID) > MaxIDLength {
		return NewValidationError("batch_id", "バッチIDが長すぎます", batchID)
	}
	return nil
}

// ValidateBatchCode バッチコードの形式をバリデーション
func ValidateBatchCode(code string) error {
	if code == "" {
		return nil // 空ならシステム採番
	}
	if len(code) > MaxBatchCodeLength {
		return NewValidationError("batch_code", "バッチコードが長すぎます", code)
	}
	if !batchCodePattern.MatchString(code) {
		return NewValidationError("batch_code", "バッチコードに無効な文字が含まれています", code)
	}
	return nil
}

// ValidateQuantity 入荷数量をバリデーション（正の整数のみ）
func ValidateQuantity(quantity int64) error {
	if quantity <= 0 {
		return NewValidationError("quantity", "数量は正の値である必要があります", fmt.Sprintf("%d", quantity))
	}
	if quantity > MaxQuantity {
		return NewValidationError("quantity", "数量が有効範囲を超えています", fmt.Sprintf("%d", quantity))
	}
	return nil
}

// ValidateUnitCost 単価をバリデーション（0以上）
func ValidateUnitCost(unitCost decimal.Decimal) error {
	if unitCost.IsNegative() {
		return NewValidationError("unit_cost", "単価は0以上である必要があります", unitCost.String())
	}
	if unitCost.GreaterThan(decimal.NewFromInt(99999999)) {
		return NewValidationError("unit_cost", "単価が有効範囲を超えています", unitCost.String())
	}
	return nil
}

// ParseUnitCost 単価の10進文字列をパースしてバリデーション
func ParseUnitCost(raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, NewValidationError("unit_cost", "単価が指定されていません", raw)
	}
	cost, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, NewValidationError("unit_cost", "単価の形式が不正です", raw)
	}
	if err := ValidateUnitCost(cost); err != nil {
		return decimal.Zero, err
	}
	return cost, nil
}

// ValidateDates 製造日と有効期限の順序をバリデーション（両方ある場合のみ）
func ValidateDates(manufacturingDate, expiryDate *time.Time) error {
	if manufacturingDate == nil || expiryDate == nil {
		return nil
	}
	if !expiryDate.After(*manufacturingDate) {
		return NewValidationError("expiry_date", "有効期限は製造日より後である必要があります",
			fmt.Sprintf("%s <= %s", expiryDate.Format("2006-01-02"), manufacturingDate.Format("2006-01-02")))
	}
	return nil
}

// ValidateNotes 備考・検査メモの長さをバリデーション
func ValidateNotes(notes string, maxLength int) error {
	if len([]rune(notes)) > maxLength {
		return NewValidationError("notes", fmt.Sprintf("備考は%d文字以内である必要があります", maxLength), notes)
	}
	return nil
}

// ValidateLocation 保管場所をバリデーション
func ValidateLocation(location string) error {
	if len(location) > MaxLocationLength {
		return NewValidationError("location", "保管場所が長すぎます", location)
	}
	return nil
}

// ValidateCreateBatchInput バッチ作成入力全体をバリデーション
func ValidateCreateBatchInput(input CreateBatchInput, notesMaxLength int) error {
	if err := ValidateProductID(input.ProductID); err != nil {
		return err
	}
	if err := ValidateSupplierID(input.SupplierID); err != nil {
		return err
	}
	if err := ValidateBatchCode(input.BatchCode); err != nil {
		return err
	}
	if err := ValidateQuantity(input.Quantity); err != nil {
		return err
	}
	if _, err := ParseUnitCost(input.UnitCost); err != nil {
		return err
	}
	if err := ValidateDates(input.ManufacturingDate, input.ExpiryDate); err != nil {
		return err
	}
	if err := ValidateLocation(input.Location); err != nil {
		return err
	}
	if err := ValidateNotes(input.Notes, notesMaxLength); err != nil {
		return err
	}
	return nil
}
