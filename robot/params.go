package robot

// Param helpers for the loosely-typed device/interface params maps that come
// out of YAML decoding.

func IntParam(p map[string]any, key string, def int) int {
	if p == nil {
		return def
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func StringParam(p map[string]any, key, def string) string {
	if p == nil {
		return def
	}
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

func BoolParam(p map[string]any, key string, def bool) bool {
	if p == nil {
		return def
	}
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}
