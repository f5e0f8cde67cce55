package reporter

import (
	"cod-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Table names written to the sink on every run
const (
	TableOrders         = "Shopify Orders"
	TableSettlements    = "Shiprocket Settlements"
	TableReconciliation = "Reconciliation"
	TableFeeBreakdown   = "Fee Breakdown"
)

var (
	ordersHeader = []interface{}{
		"Order ID", "Order Number", "Order Date", "Customer Name", "Payment Method",
		"Order Total", "Financial Status", "Fulfillment Status", "Payment Type",
	}
	settlementsHeader = []interface{}{
		"Channel Order ID", "Secondary ID", "Settlement Order ID", "Tracking ID",
		"Gross Amount", "Shipping Fee", "Collection Fee", "Adjustments",
		"Return Reversal Fee", "Net Amount", "Settlement Date", "Batch ID",
	}
	reconciliationHeader = []interface{}{
		"Order ID", "Order Number", "Order Date", "Customer Name", "Payment Method",
		"Payment Type", "Order Total", "Financial Status", "Fulfillment Status",
		"Tracking ID", "Gross Amount", "Shipping Fee", "Collection Fee", "Adjustments",
		"Return Reversal Fee", "Settlement Date", "Batch ID", "Shiprocket Net",
		"Difference", "Status", "Match Method",
	}
	feeBreakdownHeader = []interface{}{
		"Order ID", "AWB", "Courier", "Freight Charge", "COD Charge",
		"Return Reversal Fee", "Other Charges", "Total Deduction", "Zone", "Weight",
	}
)

// OrdersTable renders raw orders as a grid with a header row
func OrdersTable(orders []models.OrderRecord) [][]interface{} {
	grid := make([][]interface{}, 0, len(orders)+1)
	grid = append(grid, ordersHeader)
	for _, o := range orders {
		grid = append(grid, []interface{}{
			o.OrderID, o.OrderNumber, o.OrderDate, o.CustomerName, o.PaymentMethod,
			o.OrderTotal.String(), o.FinancialStatus, o.FulfillmentStatus, o.PaymentType.String(),
		})
	}
	return grid
}

// SettlementsTable renders raw settlements as a grid with a header row
func SettlementsTable(settlements []models.SettlementRecord) [][]interface{} {
	grid := make([][]interface{}, 0, len(settlements)+1)
	grid = append(grid, settlementsHeader)
	for _, s := range settlements {
		grid = append(grid, []interface{}{
			s.ChannelOrderID, s.SecondaryID, s.SettlementOrderID, s.TrackingID,
			s.GrossAmount.String(), s.ShippingFee.String(), s.CollectionFee.String(),
			s.Adjustments.String(), s.ReturnReversalFee.String(), s.NetAmount.String(),
			s.SettlementDate, s.BatchID,
		})
	}
	return grid
}

// ReconciliationTable renders merged rows in input order
func ReconciliationTable(rows []models.ReconciliationRow) [][]interface{} {
	grid := make([][]interface{}, 0, len(rows)+1)
	grid = append(grid, reconciliationHeader)
	for _, r := range rows {
		grid = append(grid, []interface{}{
			r.OrderID, r.OrderNumber, r.OrderDate, r.CustomerName, r.PaymentMethod,
			r.PaymentType.String(), money(r.OrderTotal), r.FinancialStatus, r.FulfillmentStatus,
			r.TrackingID, money(r.GrossAmount), money(r.ShippingFee), money(r.CollectionFee),
			money(r.Adjustments), money(r.ReturnReversalFee), r.SettlementDate, r.BatchID,
			money(r.ShiprocketNet), money(r.Difference), r.Status.String(), r.MatchMethod.String(),
		})
	}
	return grid
}

// FeeBreakdownTable renders per-shipment charges
func FeeBreakdownTable(fees []models.FeeRow) [][]interface{} {
	grid := make([][]interface{}, 0, len(fees)+1)
	grid = append(grid, feeBreakdownHeader)
	for _, f := range fees {
		grid = append(grid, []interface{}{
			f.OrderID, f.AWB, f.Courier, money(f.FreightCharge), money(f.CODCharge),
			money(f.ReturnReversalFee), money(f.OtherCharges), money(f.TotalDeduction),
			f.Zone, f.Weight,
		})
	}
	return grid
}

// money renders amounts with two decimals
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
