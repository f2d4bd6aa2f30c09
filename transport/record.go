package transport

import "encoding/json"

// Record's wire shape is a single flat JSON object: {"id": "...",
// "updatedAt": 123, <other domain fields>...}. UnmarshalJSON splits the two
// recognized metadata fields from the rest; MarshalJSON recombines them.

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["updatedAt"] = r.UpdatedAt
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if id, ok := raw["id"]; ok {
		if s, ok := id.(string); ok {
			r.ID = s
		}
		delete(raw, "id")
	}
	if ua, ok := raw["updatedAt"]; ok {
		r.UpdatedAt = toInt64(ua)
		delete(raw, "updatedAt")
	} else if ua, ok := raw["updated_at"]; ok {
		r.UpdatedAt = toInt64(ua)
		delete(raw, "updated_at")
	}
	delete(raw, "createdAt")
	delete(raw, "created_at")

	r.Fields = raw
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
