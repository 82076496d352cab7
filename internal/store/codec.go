package store

import "encoding/json"

// encodeIDList and decodeIDList serialize []int64 columns (screenshot_ids,
// child_summary_ids, etc.) as JSON text. Empty or malformed input decodes
// to nil rather than erroring, since these columns are best-effort
// narrative/debugging aids, not referential data (the link tables are the
// source of truth per invariant I5).
func encodeIDList(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeIDList(s string) []int64 {
	if s == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil
	}
	return ids
}

func encodeStringList(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeStringList(s string) []string {
	if s == "" {
		return nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(s), &ss); err != nil {
		return nil
	}
	return ss
}
