package shiprocket

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/pkg/logger"
)

type apiShipment struct {
	OrderID        flexString `json:"order_id"`
	ChannelOrderID flexString `json:"channel_order_id"`
	AWB            flexString `json:"awb"`
	CourierName    string     `json:"courier_name"`
	Charges        struct {
		FreightCharges models.Amount `json:"freight_charges"`
		CODCharges     models.Amount `json:"cod_charges"`
		RTOCharges     models.Amount `json:"rto_charges"`
		OtherCharges   models.Amount `json:"other_charges"`
		Zone           string        `json:"zone"`
		AppliedWeight  flexString    `json:"applied_weight"`
	} `json:"charges"`
}

// feeRow converts a shipment's charges. The channel order id is preferred
// so fee rows line up with storefront order numbers.
func (s apiShipment) feeRow() (models.FeeRow, error) {
	amounts := []models.Amount{
		s.Charges.FreightCharges,
		s.Charges.CODCharges,
		s.Charges.RTOCharges,
		s.Charges.OtherCharges,
	}
	parsed := make([]decimal.Decimal, len(amounts))
	total := decimal.Zero
	for i, a := range amounts {
		d, err := a.Decimal()
		if err != nil {
			return models.FeeRow{}, err
		}
		parsed[i] = d
		total = total.Add(d)
	}

	orderID := string(s.ChannelOrderID)
	if orderID == "" {
		orderID = string(s.OrderID)
	}

	return models.FeeRow{
		OrderID:           orderID,
		AWB:               string(s.AWB),
		Courier:           s.CourierName,
		FreightCharge:     parsed[0],
		CODCharge:         parsed[1],
		ReturnReversalFee: parsed[2],
		OtherCharges:      parsed[3],
		TotalDeduction:    total,
		Zone:              s.Charges.Zone,
		Weight:            string(s.Charges.AppliedWeight),
	}, nil
}

// ComputeFeeBreakdown builds the per-shipment charge table. Shipments with
// unparseable charges are logged and left out.
func (c *Client) ComputeFeeBreakdown(ctx context.Context) ([]models.FeeRow, error) {
	var rows []models.FeeRow
	skipped := 0

	err := c.eachPage(ctx, "fetch_shiprocket_shipments", c.shipmentsPath, func(data json.RawMessage) (int, error) {
		var page []apiShipment
		if err := json.Unmarshal(data, &page); err != nil {
			return 0, err
		}
		for _, s := range page {
			row, err := s.feeRow()
			if err != nil {
				skipped++
				c.logger.WithFields(logger.Fields{
					"order_id": string(s.OrderID),
					"awb":      string(s.AWB),
				}).WithError(err).Warn("Skipping shipment with malformed charges")
				continue
			}
			rows = append(rows, row)
		}
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}

	if skipped > 0 {
		c.logger.WithField("skipped", skipped).Warn("Fee breakdown is incomplete")
	}
	return rows, nil
}
