package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/service/pricing"
)

// Tolerance is the largest accepted gap between a client total and the
// recomputed one.
var Tolerance = decimal.New(1, -2)

// SnapshotStore keeps the last trusted cart per cart id.
type SnapshotStore interface {
	// Load returns models.ErrNotFound when no snapshot exists.
	Load(ctx context.Context, cartID string) (*models.CartSnapshot, error)
	Save(ctx context.Context, snap models.CartSnapshot) error
}

// PriceResolver looks up the authoritative catalog entry for an item.
type PriceResolver interface {
	GetItem(ctx context.Context, id string) (*models.CatalogItem, error)
}

// Totals is the server-side view of a cart's amounts.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Mutation is the cart after a successful add, update or remove.
type Mutation struct {
	Cart   models.CartSnapshot `json:"cart"`
	Notice string              `json:"notice,omitempty"`
}

// Guard recomputes cart totals and restores the last trusted snapshot when a
// client total diverges.
type Guard struct {
	snapshots  SnapshotStore
	prices     PriceResolver
	normalizer *pricing.Normalizer
	discount   models.DiscountConfig
	logger     *zap.Logger
	now        func() time.Time
}

// Option customizes a Guard.
type Option func(*Guard)

// WithClock replaces the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithPriceResolver makes mutations take unit prices from the catalog instead
// of trusting the client.
func WithPriceResolver(p PriceResolver) Option {
	return func(g *Guard) {
		g.prices = p
	}
}

// NewGuard creates a cart guard.
func NewGuard(snapshots SnapshotStore, normalizer *pricing.Normalizer, discount models.DiscountConfig, logger *zap.Logger, opts ...Option) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = pricing.NewNormalizer(pricing.DefaultLimits())
	}
	g := &Guard{
		snapshots:  snapshots,
		normalizer: normalizer,
		discount:   discount,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Compute returns subtotal, discount and total for lines under cfg.
func Compute(lines []models.CartLine, cfg models.DiscountConfig) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(pricing.LineTotal(l.UnitPrice, l.Quantity))
	}

	discount := decimal.Zero
	if cfg.Enabled && subtotal.GreaterThanOrEqual(decimal.NewFromFloat(cfg.MinimumAmount)) {
		discount = subtotal.Mul(decimal.NewFromFloat(cfg.Percentage)).Div(decimal.NewFromInt(100)).Round(2)
	}

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount).Round(2),
	}
}

// Snapshot returns the last trusted cart. A cart never mutated is empty.
func (g *Guard) Snapshot(ctx context.Context, cartID string) (models.CartSnapshot, error) {
	snap, err := g.snapshots.Load(ctx, cartID)
	if errors.Is(err, models.ErrNotFound) {
		return models.CartSnapshot{CartID: cartID, Lines: []models.CartLine{}}, nil
	}
	if err != nil {
		return models.CartSnapshot{}, fmt.Errorf("load cart %s: %w", cartID, err)
	}
	return *snap, nil
}

// AddItem adds quantity of itemID, merging with an existing line. Quantities
// below the minimum are rejected.
func (g *Guard) AddItem(ctx context.Context, cartID, itemID string, quantity, unitPrice float64) (Mutation, error) {
	if err := validateIDs(cartID, itemID); err != nil {
		return Mutation{}, err
	}
	res := g.normalizer.Quantity(quantity, true)
	if !res.Valid {
		return Mutation{}, models.NewValidationError("quantity", res.Message)
	}

	price, err := g.unitPrice(ctx, itemID, unitPrice)
	if err != nil {
		return Mutation{}, err
	}

	cart, err := g.Snapshot(ctx, cartID)
	if err != nil {
		return Mutation{}, err
	}

	notice := res.Message
	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ItemID != itemID {
			continue
		}
		combined := g.normalizer.Quantity(cart.Lines[i].Quantity+res.Normalized, false)
		cart.Lines[i].Quantity = combined.Normalized
		cart.Lines[i].UnitPrice = price
		if combined.Message != "" {
			notice = combined.Message
		}
		merged = true
		break
	}
	if !merged {
		cart.Lines = append(cart.Lines, models.CartLine{ItemID: itemID, Quantity: res.Normalized, UnitPrice: price})
	}

	return g.commit(ctx, cart, notice)
}

// UpdateItem sets the quantity of an existing line. A zero quantity removes it.
func (g *Guard) UpdateItem(ctx context.Context, cartID, itemID string, quantity float64) (Mutation, error) {
	if err := validateIDs(cartID, itemID); err != nil {
		return Mutation{}, err
	}
	if quantity == 0 {
		return g.RemoveItem(ctx, cartID, itemID)
	}
	if quantity < 0 {
		return Mutation{}, models.NewValidationError("quantity", "must not be negative")
	}
	res := g.normalizer.Quantity(quantity, false)
	if !res.Valid {
		return Mutation{}, models.NewValidationError("quantity", res.Message)
	}

	cart, err := g.Snapshot(ctx, cartID)
	if err != nil {
		return Mutation{}, err
	}
	idx := lineIndex(cart.Lines, itemID)
	if idx < 0 {
		return Mutation{}, fmt.Errorf("cart %s item %s: %w", cartID, itemID, models.ErrNotFound)
	}
	cart.Lines[idx].Quantity = res.Normalized

	return g.commit(ctx, cart, res.Message)
}

// RemoveItem drops a line from the cart.
func (g *Guard) RemoveItem(ctx context.Context, cartID, itemID string) (Mutation, error) {
	if err := validateIDs(cartID, itemID); err != nil {
		return Mutation{}, err
	}
	cart, err := g.Snapshot(ctx, cartID)
	if err != nil {
		return Mutation{}, err
	}
	idx := lineIndex(cart.Lines, itemID)
	if idx < 0 {
		return Mutation{}, fmt.Errorf("cart %s item %s: %w", cartID, itemID, models.ErrNotFound)
	}
	cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)

	return g.commit(ctx, cart, "")
}

// Reconcile recomputes the total of lines, or of the snapshot when lines is
// nil, and compares it with the client's asserted total. On a gap above
// Tolerance the returned Reconciliation carries the restored snapshot and the
// error is models.ErrReconciliationMismatch.
func (g *Guard) Reconcile(ctx context.Context, cartID string, stage models.CheckoutStage, lines []models.CartLine, asserted float64) (models.Reconciliation, error) {
	if strings.TrimSpace(cartID) == "" {
		return models.Reconciliation{}, models.NewValidationError("cart_id", "must be provided")
	}
	if !stage.Valid() {
		return models.Reconciliation{}, models.NewValidationError("stage", "must be delivery_details or payment")
	}
	if math.IsNaN(asserted) || math.IsInf(asserted, 0) {
		return models.Reconciliation{}, models.NewValidationError("asserted_total", "must be a finite number")
	}

	if lines == nil {
		snap, err := g.Snapshot(ctx, cartID)
		if err != nil {
			return models.Reconciliation{}, err
		}
		lines = snap.Lines
	}
	for i, l := range lines {
		if l.Quantity < 0 || l.UnitPrice < 0 {
			return models.Reconciliation{}, models.NewValidationError(fmt.Sprintf("lines[%d]", i), "quantity and unit_price must not be negative")
		}
	}

	totals := Compute(lines, g.discount)
	assertedDec := decimal.NewFromFloat(asserted)
	diff := totals.Total.Sub(assertedDec).Abs()

	rec := models.Reconciliation{
		CartID:        cartID,
		Stage:         stage,
		Subtotal:      totals.Subtotal.InexactFloat64(),
		Discount:      totals.Discount.InexactFloat64(),
		Total:         totals.Total.InexactFloat64(),
		AssertedTotal: asserted,
		Difference:    diff.InexactFloat64(),
		Matched:       diff.LessThanOrEqual(Tolerance),
	}
	if rec.Matched {
		return rec, nil
	}

	restored, err := g.Snapshot(ctx, cartID)
	if err != nil {
		return rec, err
	}
	rec.Restored = &restored

	g.logger.Warn("cart total mismatch, restoring snapshot",
		zap.String("cart_id", cartID),
		zap.String("stage", string(stage)),
		zap.String("recomputed", totals.Total.StringFixed(2)),
		zap.String("asserted", assertedDec.StringFixed(2)),
		zap.Int("restored_lines", len(restored.Lines)))
	return rec, models.ErrReconciliationMismatch
}

func (g *Guard) commit(ctx context.Context, cart models.CartSnapshot, notice string) (Mutation, error) {
	cart.TakenAt = g.now().UTC()
	if err := g.snapshots.Save(ctx, cart); err != nil {
		return Mutation{}, fmt.Errorf("snapshot cart %s: %w", cart.CartID, err)
	}
	g.logger.Debug("cart snapshot taken", zap.String("cart_id", cart.CartID), zap.Int("lines", len(cart.Lines)))
	return Mutation{Cart: cart.Clone(), Notice: notice}, nil
}

func (g *Guard) unitPrice(ctx context.Context, itemID string, requested float64) (float64, error) {
	if g.prices == nil {
		if requested < 0 || math.IsNaN(requested) || math.IsInf(requested, 0) {
			return 0, models.NewValidationError("unit_price", "must be a non-negative number")
		}
		return requested, nil
	}

	item, err := g.prices.GetItem(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("resolve price for %s: %w", itemID, err)
	}
	if !item.Available {
		return 0, models.NewValidationError("item_id", "item is not available")
	}
	return decimal.New(item.Rate, -2).InexactFloat64(), nil
}

func validateIDs(cartID, itemID string) error {
	verr := &models.ValidationError{}
	if strings.TrimSpace(cartID) == "" {
		verr.Add("cart_id", "must be provided")
	}
	if strings.TrimSpace(itemID) == "" {
		verr.Add("item_id", "must be provided")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func lineIndex(lines []models.CartLine, itemID string) int {
	for i, l := range lines {
		if l.ItemID == itemID {
			return i
		}
	}
	return -1
}
