package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/lotGoFramework/pkg/batch"
)

// PostgreSQLStorage implements the Storage interface using PostgreSQL
// PostgreSQLを使用したStorageインターフェースの実装
type PostgreSQLStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ batch.Storage = (*PostgreSQLStorage)(nil)

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(dsn string, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgreSQLStorage{
		db:     db,
		logger: logger,
	}, nil
}

// バッチ行のカラム並び（scanBatchと一致させること）
const batchColumns = `id, batch_code, product_id, supplier_id, quantity, remaining_quantity,
	unit_cost, total_cost, manufacturing_date, expiry_date, status, location, notes,
	qc_passed, qc_checked_by, qc_checked_at, qc_notes,
	created_by, created_at, approved_by, approved_at, version`

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanBatch scans one batch row including nullable sub-record columns
// NULL許可カラムを含むバッチ1行をスキャン
func scanBatch(row rowScanner) (*batch.Batch, error) {
	var (
		b           batch.Batch
		mfgDate     sql.NullTime
		expiryDate  sql.NullTime
		qcPassed    sql.NullBool
		qcCheckedBy sql.NullString
		qcCheckedAt sql.NullTime
		qcNotes     sql.NullString
		approvedBy  sql.NullString
		approvedAt  sql.NullTime
	)

	err := row.Scan(
		&b.ID,
		&b.BatchCode,
		&b.ProductID,
		&b.SupplierID,
		&b.Quantity,
		&b.RemainingQuantity,
		&b.UnitCost,
		&b.TotalCost,
		&mfgDate,
		&expiryDate,
		&b.Status,
		&b.Location,
		&b.Notes,
		&qcPassed,
		&qcCheckedBy,
		&qcCheckedAt,
		&qcNotes,
		&b.CreatedBy,
		&b.CreatedAt,
		&approvedBy,
		&approvedAt,
		&b.Version,
	)
	if err != nil {
		return nil, err
	}

	if mfgDate.Valid {
		t := mfgDate.Time
		b.ManufacturingDate = &t
	}
	if expiryDate.Valid {
		t := expiryDate.Time
		b.ExpiryDate = &t
	}
	// 検査記録はchecked_at/checked_byが揃って初めて存在する
	if qcPassed.Valid && qcCheckedAt.Valid {
		b.QualityCheck = &batch.QualityCheck{
			Passed:    qcPassed.Bool,
			CheckedBy: qcCheckedBy.String,
			CheckedAt: qcCheckedAt.Time,
			Notes:     qcNotes.String,
		}
	}
	if approvedBy.Valid {
		s := approvedBy.String
		b.ApprovedBy = &s
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		b.ApprovedAt = &t
	}

	return &b, nil
}

// CreateBatch inserts a new batch record
// 新しいバッチ記録を作成
func (s *PostgreSQLStorage) CreateBatch(ctx context.Context, b *batch.Batch) error {
	query := `
		INSERT INTO batches (id, batch_code, product_id, supplier_id, quantity, remaining_quantity,
			unit_cost, total_cost, manufacturing_date, expiry_date, status, location, notes,
			created_by, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	var mfgDate, expiryDate interface{}
	if b.ManufacturingDate != nil {
		mfgDate = *b.ManufacturingDate
	}
	if b.ExpiryDate != nil {
		expiryDate = *b.ExpiryDate
	}

	_, err := s.db.ExecContext(ctx, query,
		b.ID,
		b.BatchCode,
		b.ProductID,
		b.SupplierID,
		b.Quantity,
		b.RemainingQuantity,
		b.UnitCost,
		b.TotalCost,
		mfgDate,
		expiryDate,
		b.Status,
		b.Location,
		b.Notes,
		b.CreatedBy,
		b.CreatedAt,
		b.Version,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				return batch.ErrDuplicateBatchCode
			case "23503":
				// 外部キー違反（マネージャー側の存在確認をすり抜けた場合）
				if strings.Contains(pqErr.Constraint, "supplier") {
					return batch.ErrSupplierNotFound
				}
				return batch.ErrProductNotFound
			}
		}
		return fmt.Errorf("バッチ記録作成に失敗しました: %w", err)
	}

	return nil
}

// GetBatch retrieves a batch by ID
// IDでバッチを取得
func (s *PostgreSQLStorage) GetBatch(ctx context.Context, batchID string) (*batch.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`

	b, err := scanBatch(s.db.QueryRowContext(ctx, query, batchID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, batch.ErrBatchNotFound
		}
		return nil, fmt.Errorf("バッチ取得に失敗しました: %w", err)
	}

	return b, nil
}

// UpdateQualityCheck overwrites the quality check sub-record (last writer wins)
// 品質検査記録を上書き（後勝ち）
func (s *PostgreSQLStorage) UpdateQualityCheck(ctx context.Context, batchID string, qc *batch.QualityCheck) error {
	query := `
		UPDATE batches
		SET qc_passed = $2, qc_checked_by = $3, qc_checked_at = $4, qc_notes = $5
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		batchID,
		qc.Passed,
		qc.CheckedBy,
		qc.CheckedAt,
		qc.Notes,
	)
	if err != nil {
		return fmt.Errorf("品質検査記録の更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return batch.ErrBatchNotFound
	}

	return nil
}

// UpdateBatchDetails persists location/notes with optimistic locking
// 保管場所・備考を楽観的ロック付きで更新
func (s *PostgreSQLStorage) UpdateBatchDetails(ctx context.Context, b *batch.Batch) error {
	query := `
		UPDATE batches
		SET location = $2, notes = $3, version = $4
		WHERE id = $1 AND version = $5`

	result, err := s.db.ExecContext(ctx, query,
		b.ID,
		b.Location,
		b.Notes,
		b.Version,
		b.Version-1, // 楽観的ロックのための前バージョン
	)
	if err != nil {
		return fmt.Errorf("バッチ更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return batch.ErrVersionMismatch
	}

	return nil
}

// ApproveBatch performs the conditional pending->active transition and the
// product stock increment in one transaction. The batch row is locked first,
// so concurrent approvals serialize and the loser sees a non-pending status.
// 条件付きのpending→active遷移と商品在庫加算を1トランザクションで実行。
// バッチ行を先にロックするため、同時承認は直列化され敗者は非pendingを観測する。
func (s *PostgreSQLStorage) ApproveBatch(ctx context.Context, batchID, approvedBy string, approvedAt time.Time) (*batch.Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	lockQuery := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1 FOR UPDATE`
	b, err := scanBatch(tx.QueryRowContext(ctx, lockQuery, batchID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, batch.ErrBatchNotFound
		}
		return nil, fmt.Errorf("バッチ取得に失敗しました: %w", err)
	}

	if b.Status != batch.BatchStatusPending {
		return nil, batch.ErrInvalidBatchState
	}

	updateBatch := `
		UPDATE batches
		SET status = $2, approved_by = $3, approved_at = $4, version = version + 1
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateBatch, batchID, batch.BatchStatusActive, approvedBy, approvedAt); err != nil {
		return nil, fmt.Errorf("バッチ承認の更新に失敗しました: %w", err)
	}

	updateStock := `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = $3
		WHERE id = $1`
	result, err := tx.ExecContext(ctx, updateStock, b.ProductID, b.Quantity, approvedAt)
	if err != nil {
		return nil, fmt.Errorf("商品在庫の加算に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return nil, batch.ErrProductNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションコミットに失敗しました: %w", err)
	}

	b.Status = batch.BatchStatusActive
	b.ApprovedBy = &approvedBy
	b.ApprovedAt = &approvedAt
	b.Version++

	return b, nil
}

// ListBatches retrieves one page of batches matching the filter. The expiry
// bucket filter is translated into date-range conditions against now's date.
// フィルタに一致するバッチを1ページ分取得。鮮度フィルタは現在日付に対する
// 日付範囲条件に変換する。
func (s *PostgreSQLStorage) ListBatches(ctx context.Context, filter batch.BatchFilter, now time.Time) ([]batch.Batch, int64, error) {
	var (
		conds []string
		args  []interface{}
	)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf("(b.batch_code ILIKE %s OR p.name ILIKE %s)", p, p))
	}
	if filter.Status != "" {
		conds = append(conds, "b.status = "+arg(string(filter.Status)))
	}
	if filter.ProductID != "" {
		conds = append(conds, "b.product_id = "+arg(filter.ProductID))
	}
	if filter.SupplierID != "" {
		conds = append(conds, "b.supplier_id = "+arg(filter.SupplierID))
	}

	if filter.ExpiryStatus != "" {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		switch filter.ExpiryStatus {
		case batch.ExpiryStatusExpired:
			conds = append(conds, "b.expiry_date IS NOT NULL AND b.expiry_date < "+arg(today))
		case batch.ExpiryStatusExpiringSoon:
			conds = append(conds, "b.expiry_date >= "+arg(today)+" AND b.expiry_date <= "+arg(today.AddDate(0, 0, batch.ExpirySoonDays)))
		case batch.ExpiryStatusExpiringWarning:
			conds = append(conds, "b.expiry_date > "+arg(today.AddDate(0, 0, batch.ExpirySoonDays))+" AND b.expiry_date <= "+arg(today.AddDate(0, 0, batch.ExpiryWarningDays)))
		case batch.ExpiryStatusGood:
			conds = append(conds, "b.expiry_date > "+arg(today.AddDate(0, 0, batch.ExpiryWarningDays)))
		case batch.ExpiryStatusUnknown:
			conds = append(conds, "b.expiry_date IS NULL")
		}
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	from := ` FROM batches b LEFT JOIN products p ON p.id = b.product_id` + where

	// 総件数
	var total int64
	countQuery := `SELECT COUNT(*)` + from
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("バッチ件数取得に失敗しました: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	pageArgs := append(args, filter.PageSize, offset)
	listQuery := `SELECT ` + prefixColumns("b", batchColumns) + from +
		fmt.Sprintf(" ORDER BY b.created_at DESC, b.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, listQuery, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("バッチ一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var batches []batch.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("バッチスキャンに失敗しました: %w", err)
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("バッチ一覧の読み取りに失敗しました: %w", err)
	}

	return batches, total, nil
}

// prefixColumns prefixes each column in a comma-separated list with an alias
// カンマ区切りのカラム一覧にテーブル別名を付与
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// CreateEvent appends one audit event
// 監査イベントを1件追記
func (s *PostgreSQLStorage) CreateEvent(ctx context.Context, ev *batch.BatchEvent) error {
	query := `
		INSERT INTO batch_events (id, batch_id, type, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		ev.BatchID,
		ev.Type,
		ev.Actor,
		ev.Detail,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("監査イベント作成に失敗しました: %w", err)
	}

	return nil
}

// GetBatchHistory retrieves audit events for a batch, newest first
// バッチの監査イベントを新しい順に取得
func (s *PostgreSQLStorage) GetBatchHistory(ctx context.Context, batchID string, limit int) ([]batch.BatchEvent, error) {
	query := `
		SELECT id, batch_id, type, actor, detail, created_at
		FROM batch_events
		WHERE batch_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, batchID, limit)
	if err != nil {
		return nil, fmt.Errorf("バッチ履歴取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var events []batch.BatchEvent
	for rows.Next() {
		var ev batch.BatchEvent
		err := rows.Scan(
			&ev.ID,
			&ev.BatchID,
			&ev.Type,
			&ev.Actor,
			&ev.Detail,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("イベントスキャンに失敗しました: %w", err)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// GetProduct retrieves a product by ID
// IDで商品を取得
func (s *PostgreSQLStorage) GetProduct(ctx context.Context, productID string) (*batch.Product, error) {
	query := `
		SELECT id, name, sku, category, stock_quantity, created_at, updated_at
		FROM products
		WHERE id = $1`

	p := &batch.Product{}
	err := s.db.QueryRowContext(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&p.SKU,
		&p.Category,
		&p.StockQuantity,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, batch.ErrProductNotFound
		}
		return nil, fmt.Errorf("商品取得に失敗しました: %w", err)
	}

	return p, nil
}

// ListProducts retrieves product reference data
// 商品参照データ一覧を取得
func (s *PostgreSQLStorage) ListProducts(ctx context.Context, limit int) ([]batch.Product, error) {
	query := `
		SELECT id, name, sku, category, stock_quantity, created_at, updated_at
		FROM products
		ORDER BY name
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("商品一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var products []batch.Product
	for rows.Next() {
		var p batch.Product
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.SKU,
			&p.Category,
			&p.StockQuantity,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("商品スキャンに失敗しました: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// GetSupplier retrieves a supplier by ID
// IDで仕入先を取得
func (s *PostgreSQLStorage) GetSupplier(ctx context.Context, supplierID string) (*batch.Supplier, error) {
	query := `
		SELECT id, name, contact_email, phone, is_active, created_at
		FROM suppliers
		WHERE id = $1`

	sup := &batch.Supplier{}
	err := s.db.QueryRowContext(ctx, query, supplierID).Scan(
		&sup.ID,
		&sup.Name,
		&sup.ContactEmail,
		&sup.Phone,
		&sup.IsActive,
		&sup.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, batch.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("仕入先取得に失敗しました: %w", err)
	}

	return sup, nil
}

// ListSuppliers retrieves supplier reference data
// 仕入先参照データ一覧を取得
func (s *PostgreSQLStorage) ListSuppliers(ctx context.Context, limit int) ([]batch.Supplier, error) {
	query := `
		SELECT id, name, contact_email, phone, is_active, created_at
		FROM suppliers
		ORDER BY name
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("仕入先一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var suppliers []batch.Supplier
	for rows.Next() {
		var sup batch.Supplier
		err := rows.Scan(
			&sup.ID,
			&sup.Name,
			&sup.ContactEmail,
			&sup.Phone,
			&sup.IsActive,
			&sup.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("仕入先スキャンに失敗しました: %w", err)
		}
		suppliers = append(suppliers, sup)
	}

	return suppliers, rows.Err()
}

// Ping checks database connectivity
// データベース接続をチェック
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}
