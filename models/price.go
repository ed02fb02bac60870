package models

import "time"

// PriceSource tags where a snapshot was served from.
type PriceSource string

const (
	SourceLive  PriceSource = "live"
	SourceCache PriceSource = "cache"
)

// PriceSnapshot is a benchmark price observation with crude quality enrichment.
type PriceSnapshot struct {
	Symbol              string      `json:"symbol"`
	Price               float64     `json:"price"`
	Volume              float64     `json:"volume"`
	Timestamp           time.Time   `json:"timestamp"`
	Source              PriceSource `json:"source"`
	QualityDifferential float64     `json:"qualityDifferential"`
	SulfurContent       float64     `json:"sulfurContent"`
	APIGravity          float64     `json:"apiGravity"`
}

// Trade is the minimal trade shape checked by market-data trade compliance.
type Trade struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	SulfurContent float64   `json:"sulfurContent,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
