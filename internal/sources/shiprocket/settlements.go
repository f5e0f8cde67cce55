package shiprocket

import (
	"context"
	"encoding/json"

	"cod-reconciliation-service/internal/models"
)

type apiSettlement struct {
	ChannelOrderID flexString    `json:"channel_order_id"`
	SecondaryID    flexString    `json:"channel_order_no"`
	OrderID        flexString    `json:"order_id"`
	AWB            flexString    `json:"awb"`
	CODAmount      models.Amount `json:"cod_amount"`
	FreightCharge  models.Amount `json:"freight_charge"`
	CODCharges     models.Amount `json:"cod_charges"`
	Adjustments    models.Amount `json:"adjustments"`
	RTOReversal    models.Amount `json:"rto_reversal"`
	RemittedAmount models.Amount `json:"remitted_amount"`
	RemittanceDate string        `json:"remittance_date"`
	CRFID          flexString    `json:"crf_id"`
}

func (s apiSettlement) toRecord() models.SettlementRecord {
	return models.SettlementRecord{
		ChannelOrderID:    string(s.ChannelOrderID),
		SecondaryID:       string(s.SecondaryID),
		SettlementOrderID: string(s.OrderID),
		TrackingID:        string(s.AWB),
		GrossAmount:       s.CODAmount,
		ShippingFee:       s.FreightCharge,
		CollectionFee:     s.CODCharges,
		Adjustments:       s.Adjustments,
		ReturnReversalFee: s.RTOReversal,
		NetAmount:         s.RemittedAmount,
		SettlementDate:    s.RemittanceDate,
		BatchID:           string(s.CRFID),
	}
}

// FetchSettlements pages through the COD remittance records in API order.
// Amounts are passed through verbatim; the row builder parses them.
func (c *Client) FetchSettlements(ctx context.Context) ([]models.SettlementRecord, error) {
	var settlements []models.SettlementRecord

	err := c.eachPage(ctx, "fetch_shiprocket_settlements", c.settlementsPath, func(data json.RawMessage) (int, error) {
		var page []apiSettlement
		if err := json.Unmarshal(data, &page); err != nil {
			return 0, err
		}
		for _, s := range page {
			settlements = append(settlements, s.toRecord())
		}
		return len(page), nil
	})
	if err != nil {
		return nil, err
	}

	return settlements, nil
}
