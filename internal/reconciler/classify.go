package reconciler

import (
	"strings"

	"cod-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// tolerance absorbs rounding noise between the storefront total and the
// remitted amount. Differences strictly below it count as reconciled.
var tolerance = decimal.New(5, -1)

// Tolerance returns the fixed reconciliation tolerance
func Tolerance() decimal.Decimal {
	return tolerance
}

// ClassifyOrder decides whether an order is cash on delivery. A precomputed
// payment type wins unless it is empty or "Unknown"; otherwise the payment
// method text is searched for "cod".
func ClassifyOrder(order models.OrderRecord) models.PaymentType {
	pt := strings.TrimSpace(string(order.PaymentType))
	if pt != "" && !strings.EqualFold(pt, string(models.PaymentTypeUnknown)) {
		if strings.ToUpper(pt) == "COD" {
			return models.PaymentTypeCOD
		}
		return models.PaymentTypePrepaid
	}

	if strings.Contains(strings.ToLower(order.PaymentMethod), "cod") {
		return models.PaymentTypeCOD
	}
	return models.PaymentTypePrepaid
}

// ResolveStatus applies the status decision table. Rows are evaluated top
// to bottom:
//
//	prepaid                          -> PrepaidNoRemittance
//	COD, no settlement               -> PendingRemittance
//	COD, settled, |difference| < 0.5 -> Reconciled
//	COD, settled, otherwise          -> Mismatch
func ResolveStatus(isCOD, hasSettlement bool, difference decimal.Decimal) models.ReconciliationStatus {
	switch {
	case !isCOD:
		return models.StatusPrepaidNoRemittance
	case !hasSettlement:
		return models.StatusPendingRemittance
	case difference.Abs().LessThan(tolerance):
		return models.StatusReconciled
	default:
		return models.StatusMismatch
	}
}
