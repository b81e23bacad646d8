package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cardscope/gradepipe/internal/pipeline/domain"
	"github.com/cardscope/gradepipe/shared/postgresql"
)

// Tier scheme labels stored in the card_prices table.
const (
	schemePSA = "psa"
	schemeBGS = "bgs"
	schemeRaw = "raw"
)

// ErrNoPriceData is returned when no prices exist for the card.
var ErrNoPriceData = errors.New("no price data for card")

// PostgresPriceSource reads tier prices from the card_prices table, keyed on
// player, year, set name and parallel.
type PostgresPriceSource struct {
	client *postgresql.Client
}

// NewPostgresPriceSource creates a Postgres-backed price source.
func NewPostgresPriceSource(client *postgresql.Client) *PostgresPriceSource {
	return &PostgresPriceSource{client: client}
}

type priceRow struct {
	Scheme string  `db:"tier_scheme"`
	Tier   string  `db:"tier"`
	Price  float64 `db:"price"`
}

// Prices looks up the card's per-tier and raw prices.
func (s *PostgresPriceSource) Prices(ctx context.Context, card *domain.CardIdentity) (*TierPrices, error) {
	if !card.Priceable() {
		return nil, fmt.Errorf("card identity is missing pricing fields")
	}

	query := `
		SELECT tier_scheme, tier, price
		FROM card_prices
		WHERE player = $1
		  AND year = $2
		  AND set_name = $3
		  AND COALESCE(parallel, '') = $4
	`

	var rows []priceRow
	err := s.client.SelectContext(ctx, &rows, query,
		card.Player,
		card.Year,
		card.SetName,
		strings.TrimSpace(card.Parallel),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPriceData
		}
		return nil, fmt.Errorf("failed to query card prices: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoPriceData
	}

	prices := &TierPrices{
		PSA: make(map[domain.PSATier]float64),
		BGS: make(map[domain.BGSTier]float64),
	}
	for _, row := range rows {
		switch row.Scheme {
		case schemePSA:
			prices.PSA[domain.PSATier(row.Tier)] = row.Price
		case schemeBGS:
			prices.BGS[domain.BGSTier(row.Tier)] = row.Price
		case schemeRaw:
			prices.Raw = row.Price
		}
	}
	return prices, nil
}

// Interface conformance
var _ PriceSource = (*PostgresPriceSource)(nil)
