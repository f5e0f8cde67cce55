// Package fixtures generates reproducible order and settlement datasets
// covering every reconciliation outcome. The datasets feed tests and the
// hidden generate-fixtures command.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"cod-reconciliation-service/internal/models"
	"cod-reconciliation-service/internal/reporter"
)

// Scenario names the outcome a generated order is built to produce
type Scenario string

const (
	ScenarioReconciled        Scenario = "reconciled"
	ScenarioWithinTolerance   Scenario = "within_tolerance"
	ScenarioMismatch          Scenario = "mismatch"
	ScenarioPending           Scenario = "pending"
	ScenarioPrepaid           Scenario = "prepaid"
	ScenarioSettlementOrderID Scenario = "settlement_order_id"
	ScenarioSecondaryID       Scenario = "secondary_id"
	ScenarioMalformedAmount   Scenario = "malformed_amount"
)

// Scenarios lists every scenario in generation order
func Scenarios() []Scenario {
	return []Scenario{
		ScenarioReconciled,
		ScenarioWithinTolerance,
		ScenarioMismatch,
		ScenarioPending,
		ScenarioPrepaid,
		ScenarioSettlementOrderID,
		ScenarioSecondaryID,
		ScenarioMalformedAmount,
	}
}

// Case is one generated order with its settlement, if any, and the row the
// merge is expected to produce for it.
type Case struct {
	Scenario   Scenario
	Order      models.OrderRecord
	Settlement *models.SettlementRecord

	WantStatus models.ReconciliationStatus
	WantMethod models.MatchMethod
	// WantSkipped is set when the order cannot be reconciled at all
	WantSkipped bool
}

// Dataset is a generated batch
type Dataset struct {
	Seed  int64
	Cases []Case
}

// Orders returns the orders in generation order
func (d *Dataset) Orders() []models.OrderRecord {
	orders := make([]models.OrderRecord, 0, len(d.Cases))
	for _, c := range d.Cases {
		orders = append(orders, c.Order)
	}
	return orders
}

// Settlements returns the settlements in generation order
func (d *Dataset) Settlements() []models.SettlementRecord {
	var settlements []models.SettlementRecord
	for _, c := range d.Cases {
		if c.Settlement != nil {
			settlements = append(settlements, *c.Settlement)
		}
	}
	return settlements
}

var (
	firstNames      = []string{"Asha", "Ravi", "Meera", "Arjun", "Kavya", "Rohan", "Priya", "Vikram"}
	lastNames       = []string{"Sharma", "Iyer", "Patel", "Reddy", "Nair", "Gupta", "Das", "Singh"}
	prepaidGateways = []string{"razorpay", "shopify_payments", "paytm", "gift_card"}
)

// Generator builds datasets from a seeded source
type Generator struct {
	rng       *rand.Rand
	seed      int64
	baseDate  time.Time
	nextOrder int
}

// NewGenerator returns a generator; the same seed yields the same data
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng:       rand.New(rand.NewSource(seed)),
		seed:      seed,
		baseDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		nextOrder: 1001,
	}
}

// Generate builds n cases, cycling through every scenario
func (g *Generator) Generate(n int) *Dataset {
	scenarios := Scenarios()
	d := &Dataset{Seed: g.seed, Cases: make([]Case, 0, n)}
	for i := 0; i < n; i++ {
		d.Cases = append(d.Cases, g.Case(scenarios[i%len(scenarios)]))
	}
	return d
}

// Case builds a single case for scenario
func (g *Generator) Case(scenario Scenario) Case {
	number := g.nextOrder
	g.nextOrder++

	total := g.amount(300, 5000)
	order := models.OrderRecord{
		OrderID:           fmt.Sprintf("5%011d", number),
		OrderNumber:       fmt.Sprintf("#%d", number),
		OrderDate:         g.baseDate.AddDate(0, 0, g.rng.Intn(28)).Format("2006-01-02"),
		CustomerName:      g.pick(firstNames) + " " + g.pick(lastNames),
		PaymentMethod:     "Cash on Delivery (COD)",
		OrderTotal:        models.NewAmount(total),
		FinancialStatus:   "pending",
		FulfillmentStatus: "fulfilled",
	}

	c := Case{Scenario: scenario, Order: order}
	switch scenario {
	case ScenarioReconciled:
		c.Settlement = g.settlement(order, total, decimal.Zero)
		c.WantStatus, c.WantMethod = models.StatusReconciled, models.MatchByChannelOrderID

	case ScenarioWithinTolerance:
		// remitted 0.01 to 0.49 short of the order total
		short := decimal.New(int64(1+g.rng.Intn(49)), -2)
		c.Settlement = g.settlement(order, total, short)
		c.WantStatus, c.WantMethod = models.StatusReconciled, models.MatchByChannelOrderID

	case ScenarioMismatch:
		c.Settlement = g.settlement(order, total, g.amount(10, 200))
		c.WantStatus, c.WantMethod = models.StatusMismatch, models.MatchByChannelOrderID

	case ScenarioPending:
		c.WantStatus, c.WantMethod = models.StatusPendingRemittance, models.MatchNone

	case ScenarioPrepaid:
		c.Order.PaymentMethod = g.pick(prepaidGateways)
		c.Order.FinancialStatus = "paid"
		c.WantStatus, c.WantMethod = models.StatusPrepaidNoRemittance, models.MatchNone

	case ScenarioSettlementOrderID:
		s := g.settlement(order, total, decimal.Zero)
		s.SettlementOrderID, s.ChannelOrderID = order.OrderID, ""
		c.Settlement = s
		c.WantStatus, c.WantMethod = models.StatusReconciled, models.MatchBySettlementOrderID

	case ScenarioSecondaryID:
		s := g.settlement(order, total, decimal.Zero)
		s.SecondaryID, s.ChannelOrderID = order.OrderNumber, ""
		c.Settlement = s
		c.WantStatus, c.WantMethod = models.StatusReconciled, models.MatchBySecondaryID

	case ScenarioMalformedAmount:
		c.Order.OrderTotal = "TBD"
		c.WantSkipped = true
	}

	return c
}

// settlement remits the full COD amount less short. Freight and collection
// charges are invoiced separately and only listed.
func (g *Generator) settlement(order models.OrderRecord, total, short decimal.Decimal) *models.SettlementRecord {
	shipping := g.amount(40, 120)
	collection := total.Mul(decimal.RequireFromString("0.02")).Round(2)
	net := total.Sub(short)

	return &models.SettlementRecord{
		ChannelOrderID: order.OrderNumber[1:],
		TrackingID:     fmt.Sprintf("%d%08d", 14+g.rng.Intn(5), g.rng.Intn(100000000)),
		GrossAmount:    models.NewAmount(total),
		ShippingFee:    models.NewAmount(shipping),
		CollectionFee:  models.NewAmount(collection),
		Adjustments:    models.NewAmount(short.Neg()),
		NetAmount:      models.NewAmount(net),
		SettlementDate: g.baseDate.AddDate(0, 1, g.rng.Intn(10)).Format("2006-01-02"),
		BatchID:        fmt.Sprintf("CRF%06d", 100000+g.rng.Intn(900000)),
	}
}

func (g *Generator) amount(lo, hi int) decimal.Decimal {
	paise := int64(lo*100 + g.rng.Intn((hi-lo)*100))
	return decimal.New(paise, -2)
}

func (g *Generator) pick(values []string) string {
	return values[g.rng.Intn(len(values))]
}

// WriteOrdersCSV writes orders in the layout of the orders table, which the
// order file source reads back.
func WriteOrdersCSV(w io.Writer, orders []models.OrderRecord) error {
	return writeGrid(w, reporter.OrdersTable(orders))
}

// WriteSettlementsCSV writes settlements in the layout of the settlements
// table, which the settlement file source reads back.
func WriteSettlementsCSV(w io.Writer, settlements []models.SettlementRecord) error {
	return writeGrid(w, reporter.SettlementsTable(settlements))
}

func writeGrid(w io.Writer, grid [][]interface{}) error {
	cw := csv.NewWriter(w)
	for _, row := range grid {
		if err := cw.Write(reporter.Stringify(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
