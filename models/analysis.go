package models

import (
	"encoding/json"
	"time"
)

// Analysis is a cached AI commentary result for one listing and one feature.
// Data is the model's structured JSON output, stored verbatim.
type Analysis struct {
	ID        string          `json:"id"`
	CarID     string          `json:"car_id"`
	Feature   string          `json:"feature"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}
