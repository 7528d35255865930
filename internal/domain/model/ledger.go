package model

import "maps"

const (
	fieldScore       = "score"
	fieldLastUpdated = "lastUpdated"
	fieldUsername    = "username"
)

// Ledger is the per-user record at leaderboard/{uid}.
type Ledger struct {
	Score       int64
	LastUpdated int64 // ms; 0 when never written
	Username    string

	// extra keeps fields this server does not own so a rewrite preserves them.
	extra map[string]any
}

// LedgerFrom normalizes a stored ledger value. A bare number is a legacy
// record and reads as {score: n}. A nil value is an empty ledger.
func LedgerFrom(v any) Ledger {
	switch rec := v.(type) {
	case nil:
		return Ledger{}
	case map[string]any:
		var l Ledger
		for k, raw := range rec {
			switch k {
			case fieldScore:
				l.Score, _ = AsInt64(raw)
			case fieldLastUpdated:
				l.LastUpdated, _ = AsInt64(raw)
			case fieldUsername:
				l.Username, _ = raw.(string)
			default:
				if l.extra == nil {
					l.extra = make(map[string]any)
				}
				l.extra[k] = raw
			}
		}
		return l
	default:
		n, _ := AsInt64(rec)
		return Ledger{Score: n}
	}
}

// Value renders the ledger back into a store value.
func (l Ledger) Value() map[string]any {
	out := make(map[string]any, 3+len(l.extra))
	maps.Copy(out, l.extra)
	out[fieldScore] = l.Score
	out[fieldLastUpdated] = l.LastUpdated
	if l.Username != "" {
		out[fieldUsername] = l.Username
	}
	return out
}

// ScoreChild is the child key leaderboard queries order by.
const ScoreChild = fieldScore

// UsernameChild is the child key username lookups match on.
const UsernameChild = fieldUsername
