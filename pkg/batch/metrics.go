package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheusメトリクス定義

var (
	// batchesCreatedTotal counts successfully created batches
	// 作成に成功したバッチの累計
	batchesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lotgo",
		Subsystem: "batch",
		Name:      "created_total",
		Help:      "Total number of batches created.",
	})

	// batchesApprovedTotal counts successful approvals (stock increments)
	// 承認（在庫加算）に成功したバッチの累計
	batchesApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lotgo",
		Subsystem: "batch",
		Name:      "approved_total",
		Help:      "Total number of batches approved into usable stock.",
	})

	// qualityChecksTotal counts recorded quality checks per result
	// 記録された品質検査の累計（結果別）
	qualityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lotgo",
		Subsystem: "batch",
		Name:      "quality_checks_total",
		Help:      "Total number of quality checks recorded, by result.",
	}, []string{"result"})

	// approvalConflictsTotal counts approvals rejected by the state machine
	// 状態機械に拒否された承認試行の累計（二重承認の検出）
	approvalConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lotgo",
		Subsystem: "batch",
		Name:      "approval_conflicts_total",
		Help:      "Total number of approval attempts rejected because the batch was not pending.",
	})
)

// qcResultLabel converts a pass/fail flag into a metric label value
// 合否フラグをメトリクスラベル値に変換
func qcResultLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
