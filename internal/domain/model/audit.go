package model

// Log collections.
const (
	LogServer = "server"
	LogAdmin  = "admin"
)

// AuditEntry is one record appended under logs/{collection}.
type AuditEntry struct {
	Collection string
	Function   string
	UID        string
	Message    string
	Details    map[string]any
	Timestamp  int64 // ms; filled by the writer when zero
}

// Value renders the entry into a store value.
func (e AuditEntry) Value() map[string]any {
	out := map[string]any{
		"function":  e.Function,
		"message":   e.Message,
		"timestamp": e.Timestamp,
	}
	if e.UID != "" {
		out["uid"] = e.UID
	}
	if len(e.Details) > 0 {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		out["details"] = details
	}
	return out
}
