package model

// SummaryRecord is one submitted category-usage summary.
// Timestamp is the record key; Day is its UTC calendar date (YYYY-MM-DD)
// and is the partition used for history queries.
type SummaryRecord struct {
	Timestamp string             `json:"timestamp"`
	Day       string             `json:"day"`
	UserID    string             `json:"userId"`
	Summary   map[string]float64 `json:"summary"`
}

// DayLayout is the format of the summary partition key.
const DayLayout = "2006-01-02"
