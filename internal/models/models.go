package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentType is the collection mode of an order
type PaymentType string

const (
	PaymentTypeCOD     PaymentType = "COD"
	PaymentTypePrepaid PaymentType = "Prepaid"
	PaymentTypeUnknown PaymentType = "Unknown"
)

// String returns the string representation of PaymentType
func (p PaymentType) String() string {
	return string(p)
}

// IsCOD reports whether the payment type is cash on delivery
func (p PaymentType) IsCOD() bool {
	return p == PaymentTypeCOD
}

// MatchMethod records which correlation key linked an order to a settlement
type MatchMethod string

const (
	MatchByChannelOrderID    MatchMethod = "channel_order_id"
	MatchBySettlementOrderID MatchMethod = "settlement_order_id"
	MatchBySecondaryID       MatchMethod = "secondary_id"
	MatchNone                MatchMethod = "none"
)

// String returns the string representation of MatchMethod
func (m MatchMethod) String() string {
	return string(m)
}

// MatchMethods lists every method in priority order, ending with MatchNone.
func MatchMethods() []MatchMethod {
	return []MatchMethod{MatchByChannelOrderID, MatchBySettlementOrderID, MatchBySecondaryID, MatchNone}
}

// ReconciliationStatus is the outcome for a single order
type ReconciliationStatus string

const (
	StatusReconciled          ReconciliationStatus = "Reconciled"
	StatusMismatch            ReconciliationStatus = "Mismatch"
	StatusPendingRemittance   ReconciliationStatus = "PendingRemittance"
	StatusPrepaidNoRemittance ReconciliationStatus = "PrepaidNoRemittance"
)

// String returns the string representation of ReconciliationStatus
func (s ReconciliationStatus) String() string {
	return string(s)
}

// IsValid checks if the status is one of the four known values
func (s ReconciliationStatus) IsValid() bool {
	switch s {
	case StatusReconciled, StatusMismatch, StatusPendingRemittance, StatusPrepaidNoRemittance:
		return true
	}
	return false
}

// Statuses lists every reconciliation status.
func Statuses() []ReconciliationStatus {
	return []ReconciliationStatus{StatusReconciled, StatusMismatch, StatusPendingRemittance, StatusPrepaidNoRemittance}
}

// Amount is a monetary value exactly as a provider delivered it. Providers
// send numbers, numeric strings and formatted strings ("₹1,190.00"), so the
// raw text is kept and only parsed when a row is built.
type Amount string

// NewAmount formats a decimal as an Amount
func NewAmount(d decimal.Decimal) Amount {
	return Amount(d.String())
}

// UnmarshalJSON accepts JSON numbers, strings and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or string: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Decimal parses the amount. An empty amount is zero.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if strings.TrimSpace(string(a)) == "" {
		return decimal.Zero, nil
	}
	return ParseDecimalFromString(string(a))
}

// String returns the raw amount text
func (a Amount) String() string {
	return string(a)
}

// OrderRecord is a storefront order
type OrderRecord struct {
	OrderID           string      `json:"orderId"`
	OrderNumber       string      `json:"orderNumber"`
	OrderDate         string      `json:"orderDate"`
	CustomerName      string      `json:"customerName"`
	PaymentMethod     string      `json:"paymentMethod"`
	OrderTotal        Amount      `json:"orderTotal"`
	FinancialStatus   string      `json:"financialStatus"`
	FulfillmentStatus string      `json:"fulfillmentStatus"`
	PaymentType       PaymentType `json:"paymentType,omitempty"`
}

// String returns a string representation of the order
func (o OrderRecord) String() string {
	return fmt.Sprintf("Order{ID: %s, Number: %s, Total: %s, Method: %s}",
		o.OrderID, o.OrderNumber, o.OrderTotal, o.PaymentMethod)
}

// SettlementRecord is a COD remittance line from the logistics provider.
// It is the superset of the layouts the provider has used.
type SettlementRecord struct {
	ChannelOrderID    string `json:"channelOrderId"`
	SecondaryID       string `json:"secondaryId"`
	SettlementOrderID string `json:"settlementOrderId"`
	TrackingID        string `json:"trackingId"`
	GrossAmount       Amount `json:"grossAmount"`
	ShippingFee       Amount `json:"shippingFee"`
	CollectionFee     Amount `json:"collectionFee"`
	Adjustments       Amount `json:"adjustments"`
	ReturnReversalFee Amount `json:"returnReversalFee"`
	NetAmount         Amount `json:"netAmount"`
	SettlementDate    string `json:"settlementDate"`
	BatchID           string `json:"batchId"`
}

// String returns a string representation of the settlement
func (s SettlementRecord) String() string {
	return fmt.Sprintf("Settlement{Channel: %s, Order: %s, Net: %s, Batch: %s}",
		s.ChannelOrderID, s.SettlementOrderID, s.NetAmount, s.BatchID)
}

// FeeRow is the per-shipment charge breakdown
type FeeRow struct {
	OrderID           string          `json:"orderId"`
	AWB               string          `json:"awb"`
	Courier           string          `json:"courier"`
	FreightCharge     decimal.Decimal `json:"freightCharge"`
	CODCharge         decimal.Decimal `json:"codCharge"`
	ReturnReversalFee decimal.Decimal `json:"returnReversalFee"`
	OtherCharges      decimal.Decimal `json:"otherCharges"`
	TotalDeduction    decimal.Decimal `json:"totalDeduction"`
	Zone              string          `json:"zone"`
	Weight            string          `json:"weight"`
}

// ReconciliationRow is one merged output line, one per input order
type ReconciliationRow struct {
	OrderID           string               `json:"orderId"`
	OrderNumber       string               `json:"orderNumber"`
	OrderDate         string               `json:"orderDate"`
	CustomerName      string               `json:"customerName"`
	PaymentMethod     string               `json:"paymentMethod"`
	PaymentType       PaymentType          `json:"paymentType"`
	OrderTotal        decimal.Decimal      `json:"orderTotal"`
	FinancialStatus   string               `json:"financialStatus"`
	FulfillmentStatus string               `json:"fulfillmentStatus"`
	TrackingID        string               `json:"trackingId"`
	GrossAmount       decimal.Decimal      `json:"grossAmount"`
	ShippingFee       decimal.Decimal      `json:"shippingFee"`
	CollectionFee     decimal.Decimal      `json:"collectionFee"`
	Adjustments       decimal.Decimal      `json:"adjustments"`
	ReturnReversalFee decimal.Decimal      `json:"returnReversalFee"`
	SettlementDate    string               `json:"settlementDate"`
	BatchID           string               `json:"batchId"`
	ShiprocketNet     decimal.Decimal      `json:"shiprocketNet"`
	Difference        decimal.Decimal      `json:"difference"`
	Status            ReconciliationStatus `json:"status"`
	MatchMethod       MatchMethod          `json:"matchMethod"`
}

// Stats accumulates counters over the rows of one run. Only rows that were
// built successfully are counted; Skipped counts the rest.
type Stats struct {
	TotalOrders   int                          `json:"totalOrders"`
	CODOrders     int                          `json:"codOrders"`
	PrepaidOrders int                          `json:"prepaidOrders"`
	ByStatus      map[ReconciliationStatus]int `json:"byStatus"`
	ByMatchMethod map[MatchMethod]int          `json:"byMatchMethod"`
	Skipped       int                          `json:"skipped"`
	OrderTotal    decimal.Decimal              `json:"orderTotal"`
	NetReceived   decimal.Decimal              `json:"netReceived"`
	NetDifference decimal.Decimal              `json:"netDifference"`
}

// NewStats returns a Stats with every status and method present at zero
func NewStats() *Stats {
	s := &Stats{
		ByStatus:      make(map[ReconciliationStatus]int, 4),
		ByMatchMethod: make(map[MatchMethod]int, 4),
		OrderTotal:    decimal.Zero,
		NetReceived:   decimal.Zero,
		NetDifference: decimal.Zero,
	}
	for _, st := range Statuses() {
		s.ByStatus[st] = 0
	}
	for _, m := range MatchMethods() {
		s.ByMatchMethod[m] = 0
	}
	return s
}

// Add counts one successfully built row
func (s *Stats) Add(row ReconciliationRow) {
	s.TotalOrders++
	if row.PaymentType.IsCOD() {
		s.CODOrders++
	} else {
		s.PrepaidOrders++
	}
	s.ByStatus[row.Status]++
	s.ByMatchMethod[row.MatchMethod]++
	s.OrderTotal = s.OrderTotal.Add(row.OrderTotal)
	s.NetReceived = s.NetReceived.Add(row.ShiprocketNet)
	s.NetDifference = s.NetDifference.Add(row.Difference)
}

// ParseDecimalFromString parses a monetary string, dropping currency symbols
// and thousands separators.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	for _, symbol := range []string{"₹", "$", "Rs.", "Rs", "INR", ","} {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}
