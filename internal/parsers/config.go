package parsers

import (
	"fmt"
	"strings"
)

// Logical field names used as keys of ColumnAliases
const (
	FieldOrderID           = "order_id"
	FieldOrderNumber       = "order_number"
	FieldOrderDate         = "order_date"
	FieldCustomerName      = "customer_name"
	FieldPaymentMethod     = "payment_method"
	FieldOrderTotal        = "order_total"
	FieldFinancialStatus   = "financial_status"
	FieldFulfillmentStatus = "fulfillment_status"
	FieldPaymentType       = "payment_type"

	FieldChannelOrderID    = "channel_order_id"
	FieldSecondaryID       = "secondary_id"
	FieldSettlementOrderID = "settlement_order_id"
	FieldTrackingID        = "tracking_id"
	FieldGrossAmount       = "gross_amount"
	FieldShippingFee       = "shipping_fee"
	FieldCollectionFee     = "collection_fee"
	FieldAdjustments       = "adjustments"
	FieldReturnReversalFee = "return_reversal_fee"
	FieldNetAmount         = "net_amount"
	FieldSettlementDate    = "settlement_date"
	FieldBatchID           = "batch_id"
)

// OrderFileConfig describes the column layout of an order export
type OrderFileConfig struct {
	OrderIDColumn           string              `json:"order_id_column"`
	OrderNumberColumn       string              `json:"order_number_column"`
	OrderDateColumn         string              `json:"order_date_column"`
	CustomerNameColumn      string              `json:"customer_name_column"`
	PaymentMethodColumn     string              `json:"payment_method_column"`
	OrderTotalColumn        string              `json:"order_total_column"`
	FinancialStatusColumn   string              `json:"financial_status_column"`
	FulfillmentStatusColumn string              `json:"fulfillment_status_column"`
	PaymentTypeColumn       string              `json:"payment_type_column"`
	HasHeader               bool                `json:"has_header"`
	Delimiter               rune                `json:"delimiter"`
	ColumnAliases           map[string][]string `json:"column_aliases,omitempty"`
}

// Validate checks if the order file configuration is valid
func (c *OrderFileConfig) Validate() error {
	if strings.TrimSpace(c.OrderIDColumn) == "" {
		return fmt.Errorf("order id column cannot be empty")
	}

	if strings.TrimSpace(c.OrderNumberColumn) == "" {
		return fmt.Errorf("order number column cannot be empty")
	}

	if strings.TrimSpace(c.OrderTotalColumn) == "" {
		return fmt.Errorf("order total column cannot be empty")
	}

	return nil
}

// GetColumnName returns the configured column for a logical field
func (c *OrderFileConfig) GetColumnName(field string) string {
	switch field {
	case FieldOrderID:
		return c.OrderIDColumn
	case FieldOrderNumber:
		return c.OrderNumberColumn
	case FieldOrderDate:
		return c.OrderDateColumn
	case FieldCustomerName:
		return c.CustomerNameColumn
	case FieldPaymentMethod:
		return c.PaymentMethodColumn
	case FieldOrderTotal:
		return c.OrderTotalColumn
	case FieldFinancialStatus:
		return c.FinancialStatusColumn
	case FieldFulfillmentStatus:
		return c.FulfillmentStatusColumn
	case FieldPaymentType:
		return c.PaymentTypeColumn
	default:
		return field
	}
}

// DefaultOrderFileConfig matches the orders table this service writes and
// the storefront's own order export.
func DefaultOrderFileConfig() *OrderFileConfig {
	return &OrderFileConfig{
		OrderIDColumn:           "Order ID",
		OrderNumberColumn:       "Order Number",
		OrderDateColumn:         "Order Date",
		CustomerNameColumn:      "Customer Name",
		PaymentMethodColumn:     "Payment Method",
		OrderTotalColumn:        "Order Total",
		FinancialStatusColumn:   "Financial Status",
		FulfillmentStatusColumn: "Fulfillment Status",
		PaymentTypeColumn:       "Payment Type",
		HasHeader:               true,
		Delimiter:               ',',
		ColumnAliases: map[string][]string{
			FieldOrderID:           {"Id"},
			FieldOrderNumber:       {"Name"},
			FieldOrderDate:         {"Created at"},
			FieldCustomerName:      {"Billing Name"},
			FieldOrderTotal:        {"Total"},
			FieldFulfillmentStatus: {"Fulfillment status"},
		},
	}
}

// SettlementFileConfig describes the column layout of a remittance export
type SettlementFileConfig struct {
	ChannelOrderIDColumn    string              `json:"channel_order_id_column"`
	SecondaryIDColumn       string              `json:"secondary_id_column"`
	SettlementOrderIDColumn string              `json:"settlement_order_id_column"`
	TrackingIDColumn        string              `json:"tracking_id_column"`
	GrossAmountColumn       string              `json:"gross_amount_column"`
	ShippingFeeColumn       string              `json:"shipping_fee_column"`
	CollectionFeeColumn     string              `json:"collection_fee_column"`
	AdjustmentsColumn       string              `json:"adjustments_column"`
	ReturnReversalFeeColumn string              `json:"return_reversal_fee_column"`
	NetAmountColumn         string              `json:"net_amount_column"`
	SettlementDateColumn    string              `json:"settlement_date_column"`
	BatchIDColumn           string              `json:"batch_id_column"`
	HasHeader               bool                `json:"has_header"`
	Delimiter               rune                `json:"delimiter"`
	ColumnAliases           map[string][]string `json:"column_aliases,omitempty"`
}

// Validate checks if the settlement file configuration is valid
func (c *SettlementFileConfig) Validate() error {
	if strings.TrimSpace(c.ChannelOrderIDColumn) == "" &&
		strings.TrimSpace(c.SettlementOrderIDColumn) == "" &&
		strings.TrimSpace(c.SecondaryIDColumn) == "" {
		return fmt.Errorf("at least one settlement key column must be configured")
	}

	if strings.TrimSpace(c.NetAmountColumn) == "" {
		return fmt.Errorf("net amount column cannot be empty")
	}

	return nil
}

// GetColumnName returns the configured column for a logical field
func (c *SettlementFileConfig) GetColumnName(field string) string {
	switch field {
	case FieldChannelOrderID:
		return c.ChannelOrderIDColumn
	case FieldSecondaryID:
		return c.SecondaryIDColumn
	case FieldSettlementOrderID:
		return c.SettlementOrderIDColumn
	case FieldTrackingID:
		return c.TrackingIDColumn
	case FieldGrossAmount:
		return c.GrossAmountColumn
	case FieldShippingFee:
		return c.ShippingFeeColumn
	case FieldCollectionFee:
		return c.CollectionFeeColumn
	case FieldAdjustments:
		return c.AdjustmentsColumn
	case FieldReturnReversalFee:
		return c.ReturnReversalFeeColumn
	case FieldNetAmount:
		return c.NetAmountColumn
	case FieldSettlementDate:
		return c.SettlementDateColumn
	case FieldBatchID:
		return c.BatchIDColumn
	default:
		return field
	}
}

// DefaultSettlementFileConfig matches the settlements table this service
// writes and the logistics provider's COD remittance export.
func DefaultSettlementFileConfig() *SettlementFileConfig {
	return &SettlementFileConfig{
		ChannelOrderIDColumn:    "Channel Order ID",
		SecondaryIDColumn:       "Secondary ID",
		SettlementOrderIDColumn: "Settlement Order ID",
		TrackingIDColumn:        "Tracking ID",
		GrossAmountColumn:       "Gross Amount",
		ShippingFeeColumn:       "Shipping Fee",
		CollectionFeeColumn:     "Collection Fee",
		AdjustmentsColumn:       "Adjustments",
		ReturnReversalFeeColumn: "Return Reversal Fee",
		NetAmountColumn:         "Net Amount",
		SettlementDateColumn:    "Settlement Date",
		BatchIDColumn:           "Batch ID",
		HasHeader:               true,
		Delimiter:               ',',
		ColumnAliases: map[string][]string{
			FieldChannelOrderID:    {"Channel Order Id", "channel_order_id"},
			FieldSettlementOrderID: {"Order ID", "order_id"},
			FieldTrackingID:        {"AWB", "AWB Code", "awb"},
			FieldGrossAmount:       {"COD Amount", "cod_amount"},
			FieldShippingFee:       {"Freight Charges", "Total Freight Charge", "freight_charge"},
			FieldCollectionFee:     {"COD Charges", "cod_charges"},
			FieldReturnReversalFee: {"RTO Reversal", "rto_reversal"},
			FieldNetAmount:         {"Remitted Amount", "Net Remitted", "remitted_amount"},
			FieldSettlementDate:    {"Remittance Date", "remittance_date"},
			FieldBatchID:           {"CRF ID", "crf_id", "UTR"},
		},
	}
}

// columnResolver maps a logical field to a header index in the file
type columnResolver interface {
	GetColumnName(field string) string
}

// resolveColumn finds the header index for a field, trying the configured
// column first and then its aliases. Returns -1 when none is present.
func resolveColumn(parseCtx *ParseContext, cfg columnResolver, aliases map[string][]string, field string) int {
	if name := cfg.GetColumnName(field); name != "" {
		if idx := parseCtx.GetColumnIndex(name); idx != -1 {
			return idx
		}
	}
	for _, alias := range aliases[field] {
		if idx := parseCtx.GetColumnIndex(alias); idx != -1 {
			return idx
		}
	}
	return -1
}

// columnIndex holds the resolved header position of each logical field
type columnIndex map[string]int

func (ci columnIndex) value(record []string, field string) string {
	idx, ok := ci[field]
	if !ok || idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// columnNames lists the configured columns of fields, used as the header of
// files without one.
func columnNames(cfg columnResolver, fields []string) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = cfg.GetColumnName(f)
	}
	return names
}

func buildColumnIndex(parseCtx *ParseContext, cfg columnResolver, aliases map[string][]string, fields []string) columnIndex {
	ci := make(columnIndex, len(fields))
	for _, f := range fields {
		ci[f] = resolveColumn(parseCtx, cfg, aliases, f)
	}
	return ci
}
