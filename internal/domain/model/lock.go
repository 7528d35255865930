package model

// LockRecord is the value held at locks/{uid}.
type LockRecord struct {
	Owner   string
	Since   int64
	Expires int64
}

// LockFrom decodes a stored lock. ok is false when v is not a lock record.
func LockFrom(v any) (LockRecord, bool) {
	m, isMap := v.(map[string]any)
	if !isMap {
		return LockRecord{}, false
	}
	var rec LockRecord
	rec.Owner, _ = m["owner"].(string)
	rec.Since, _ = AsInt64(m["since"])
	rec.Expires, _ = AsInt64(m["expires"])
	return rec, true
}

// Held reports whether the lock is still valid at now.
func (r LockRecord) Held(now int64) bool {
	return r.Expires > now
}

// Value renders the lock into a store value.
func (r LockRecord) Value() map[string]any {
	return map[string]any{
		"owner":   r.Owner,
		"since":   r.Since,
		"expires": r.Expires,
	}
}
