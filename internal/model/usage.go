package model

import "time"

// UsageRecord holds one user's cumulative API usage. The JSON shape matches
// the usage_log.json file written by earlier deployments.
type UsageRecord struct {
	TotalCalls int64      `json:"totalCalls"`
	TotalCost  float64    `json:"totalCost"`
	LastActive *time.Time `json:"lastActive"`
	ID         string     `json:"id"`
}

// UsageLedger maps userId to that user's usage record.
type UsageLedger map[string]UsageRecord

// Clone returns a copy that shares no mutable state with l.
func (l UsageLedger) Clone() UsageLedger {
	out := make(UsageLedger, len(l))
	for k, v := range l {
		if v.LastActive != nil {
			t := *v.LastActive
			v.LastActive = &t
		}
		out[k] = v
	}
	return out
}
