package record

import (
	"sort"
	"strings"
)

// Encode renders r on a single line. Keys are written in ascending byte
// order so the output is deterministic regardless of insertion order.
// No trailing newline is added.
func Encode(r *Record) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range sortedKeys(r.values) {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeString(&sb, k)
		sb.WriteByte(':')
		writeString(&sb, r.values[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

func writeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\t':
			sb.WriteString(`\t`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
