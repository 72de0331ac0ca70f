package domain

import "time"

// Futures board identifiers as published on the EMI hedge-market pages.
const (
	LocationBenmore = "BEN"
	LocationOtahuhu = "OTA"

	DurationQuarterly = "QTR"
	DurationMonthly   = "MON"
)

// ContractStatus splits futures contracts into the two groups the dashboard
// renders separately.
type ContractStatus string

const (
	ContractActive   ContractStatus = "active"
	ContractHistoric ContractStatus = "historic"
)

// activeWindow is how far back a contract's newest price may lie before the
// contract is shelved into the historic group.
const activeWindow = 180 * 24 * time.Hour

// ClassifyContract decides whether a contract whose most recent price is at
// latest still counts as active as of asOf.
func ClassifyContract(latest, asOf time.Time) ContractStatus {
	if asOf.Sub(latest) > activeWindow {
		return ContractHistoric
	}
	return ContractActive
}

// FuturesSnapshot is one captured futures board: every contract series the
// EMI chart embeds for a (location, duration) pair, with the points kept in
// the raw Highcharts form ("[Date.UTC(2024,0,15), 123.45]") exactly as
// scraped. Parsing the points into SeriesRecords is the row parser's job,
// not the scraper's.
type FuturesSnapshot struct {
	Location   string              `json:"location"`
	Duration   string              `json:"duration"`
	CapturedAt time.Time           `json:"captured_at"`
	Contracts  map[string][]string `json:"contracts"`
}

// BoardID is the snapshot's stable identifier, e.g. "BEN_QTR".
func (s FuturesSnapshot) BoardID() string {
	return s.Location + "_" + s.Duration
}
