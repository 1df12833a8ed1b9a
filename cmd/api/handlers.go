package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nemonet1337/lotGoFramework/pkg/batch"
)

// Handlers holds HTTP handlers for the batch lifecycle API
// バッチライフサイクルAPI用のHTTPハンドラーを保持
type Handlers struct {
	manager        batch.BatchManager
	catalog        batch.CatalogReader
	logger         *zap.Logger
	notesMaxLength int
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(manager batch.BatchManager, catalog batch.CatalogReader, logger *zap.Logger, notesMaxLength int) *Handlers {
	if notesMaxLength <= 0 {
		notesMaxLength = 300
	}
	return &Handlers{
		manager:        manager,
		catalog:        catalog,
		logger:         logger,
		notesMaxLength: notesMaxLength,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateBatchRequest represents request to create a batch
// バッチ作成リクエストを表現
type CreateBatchRequest struct {
	BatchCode         string `json:"batch_code"`
	ProductID         string `json:"product_id"`
	SupplierID        string `json:"supplier_id"`
	Quantity          int64  `json:"quantity"`
	UnitCost          string `json:"unit_cost"`
	ManufacturingDate string `json:"manufacturing_date"` // YYYY-MM-DD
	ExpiryDate        string `json:"expiry_date"`        // YYYY-MM-DD
	Location          string `json:"location"`
	Notes             string `json:"notes"`
}

// UpdateBatchRequest represents a partial batch update. Only the fields present
// in the request body are applied.
// バッチの部分更新リクエストを表現（指定されたフィールドのみ適用）
type UpdateBatchRequest struct {
	QualityCheck *QualityCheckRequest `json:"quality_check,omitempty"`
	Location     *string              `json:"location,omitempty"`
	Notes        *string              `json:"notes,omitempty"`
}

// QualityCheckRequest represents a quality check submission
// 品質検査の登録リクエストを表現
type QualityCheckRequest struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.sendSuccess(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"service":   "lotGoFramework",
	})
}

// CreateBatch handles batch creation requests
// バッチ作成リクエストを処理
func (h *Handlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	input := batch.CreateBatchInput{
		BatchCode:  req.BatchCode,
		ProductID:  req.ProductID,
		SupplierID: req.SupplierID,
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		Location:   req.Location,
		Notes:      req.Notes,
	}

	var err error
	if input.ManufacturingDate, err = parseDate(req.ManufacturingDate); err != nil {
		h.sendError(w, http.StatusBadRequest, "製造日の形式が不正です (YYYY-MM-DD)")
		return
	}
	if input.ExpiryDate, err = parseDate(req.ExpiryDate); err != nil {
		h.sendError(w, http.StatusBadRequest, "有効期限の形式が不正です (YYYY-MM-DD)")
		return
	}

	b, err := h.manager.CreateBatch(r.Context(), input)
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendStatus(w, http.StatusCreated, b)
}

// ListBatches handles batch list requests with filters and pagination
// フィルタ・ページネーション付きのバッチ一覧リクエストを処理
func (h *Handlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// ページサイズは page_size と limit のどちらでも受け付ける
	pageSize := queryInt(q.Get("page_size"), 0)
	if pageSize == 0 {
		pageSize = queryInt(q.Get("limit"), 0)
	}

	filter := batch.BatchFilter{
		Search:       q.Get("search"),
		Status:       batch.BatchStatus(q.Get("status")),
		ExpiryStatus: batch.ExpiryStatus(q.Get("expiry_status")),
		ProductID:    q.Get("product_id"),
		SupplierID:   q.Get("supplier_id"),
		Page:         queryInt(q.Get("page"), 1),
		PageSize:     pageSize,
	}

	page, err := h.manager.ListBatches(r.Context(), filter)
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendSuccess(w, page)
}

// GetBatch handles single batch retrieval requests
// バッチ1件取得リクエストを処理
func (h *Handlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batchId"]

	b, err := h.manager.GetBatch(r.Context(), batchID)
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendSuccess(w, b)
}

// ApproveBatch handles approval requests. Approval succeeds at most once per
// batch; repeated calls return a conflict.
// 承認リクエストを処理。承認はバッチごとに最大1回で、再実行は競合を返す。
func (h *Handlers) ApproveBatch(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batchId"]

	b, err := h.manager.ApproveBatch(r.Context(), batchID)
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendSuccess(w, b)
}

// UpdateBatch handles partial update requests covering the quality check
// sub-record and the mutable detail fields
// 品質検査記録と可変フィールドの部分更新リクエストを処理
func (h *Handlers) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batchId"]

	var req UpdateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}
	if req.QualityCheck == nil && req.Location == nil && req.Notes == nil {
		h.sendError(w, http.StatusBadRequest, "更新対象のフィールドが指定されていません")
		return
	}

	// 検査記録と詳細フィールドの両方を先に検証する。片方を適用した後に
	// もう片方がバリデーションで失敗すると部分適用になってしまう。
	if req.QualityCheck != nil {
		if err := batch.ValidateNotes(req.QualityCheck.Notes, h.notesMaxLength); err != nil {
			h.sendManagerError(w, err)
			return
		}
	}
	if req.Location != nil {
		if err := batch.ValidateLocation(*req.Location); err != nil {
			h.sendManagerError(w, err)
			return
		}
	}
	if req.Notes != nil {
		if err := batch.ValidateNotes(*req.Notes, h.notesMaxLength); err != nil {
			h.sendManagerError(w, err)
			return
		}
	}

	var (
		b   *batch.Batch
		err error
	)

	if req.QualityCheck != nil {
		b, err = h.manager.RecordQualityCheck(r.Context(), batchID, req.QualityCheck.Passed, req.QualityCheck.Notes)
		if err != nil {
			h.sendManagerError(w, err)
			return
		}
	}

	if req.Location != nil || req.Notes != nil {
		b, err = h.manager.UpdateBatchDetails(r.Context(), batchID, req.Location, req.Notes)
		if err != nil {
			h.sendManagerError(w, err)
			return
		}
	}

	h.sendSuccess(w, b)
}

// GetBatchHistory handles audit history requests
// 監査履歴取得リクエストを処理
func (h *Handlers) GetBatchHistory(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batchId"]
	limit := queryInt(r.URL.Query().Get("limit"), 0)

	events, err := h.manager.GetBatchHistory(r.Context(), batchID, limit)
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendSuccess(w, events)
}

// GetExpirySummary handles expiry dashboard summary requests
// 鮮度ダッシュボード集計リクエストを処理
func (h *Handlers) GetExpirySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.manager.GetExpirySummary(r.Context())
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendSuccess(w, summary)
}

// ListProducts handles product reference data requests
// 商品参照データ取得リクエストを処理
func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query().Get("limit"), 0)

	products, err := h.catalog.ListProducts(r.Context(), limit)
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendSuccess(w, products)
}

// ListSuppliers handles supplier reference data requests
// 仕入先参照データ取得リクエストを処理
func (h *Handlers) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query().Get("limit"), 0)

	suppliers, err := h.catalog.ListSuppliers(r.Context(), limit)
	if err != nil {
		h.sendManagerError(w, err)
		return
	}

	h.sendSuccess(w, suppliers)
}

// ヘルパーメソッド

// parseDate parses an optional YYYY-MM-DD date string
// 任意のYYYY-MM-DD日付文字列をパース
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// queryInt parses an integer query parameter with a default
// 整数クエリパラメータをデフォルト値付きでパース
func queryInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultValue
}

// sendManagerError maps manager errors to HTTP status codes
// マネージャーのエラーをHTTPステータスコードに対応付けて送信
func (h *Handlers) sendManagerError(w http.ResponseWriter, err error) {
	switch {
	case batch.IsValidation(err):
		h.sendError(w, http.StatusBadRequest, err.Error())
	case batch.IsNotFound(err):
		h.sendError(w, http.StatusNotFound, err.Error())
	case batch.IsInvalidState(err):
		h.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, batch.ErrDuplicateBatchCode):
		h.sendError(w, http.StatusConflict, err.Error())
	default:
		var ce *batch.ConcurrencyError
		if errors.As(err, &ce) {
			h.sendError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("リクエスト処理に失敗しました", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, "内部エラーが発生しました")
	}
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.sendStatus(w, http.StatusOK, data)
}

// sendStatus sends a successful API response with an explicit status code
// ステータスコード指定付きの成功APIレスポンスを送信
func (h *Handlers) sendStatus(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: true,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("エラーレスポンス送信に失敗しました", zap.Error(err))
	}
}
