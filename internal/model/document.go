package model

// Document is an arbitrary structured JSON object.
//
// Webhook payloads and the repository/event lists returned by GitHub are
// passed through mostly uninterpreted: we read a handful of fields and store
// or forward the rest verbatim. A tagged map keeps that pass-through honest:
// no schema to drift out of date, no silent field loss on re-serialization.
type Document = map[string]any

// DocString returns the string value at key, or "" if the key is absent or
// holds a non-string value.
func DocString(d Document, key string) string {
	s, _ := d[key].(string)
	return s
}

// DocInt64 returns the numeric value at key as an int64. JSON numbers decode
// as float64, so both representations are accepted. Returns 0 when absent.
func DocInt64(d Document, key string) int64 {
	switch v := d[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// DocNested returns the nested object at key, or nil if the key is absent or
// holds a non-object value.
func DocNested(d Document, key string) Document {
	m, _ := d[key].(map[string]any)
	return m
}
