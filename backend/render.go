package backend

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Render substitutes args into stmt for display purposes only. The result is
// never executed.
func Render(d Dialect, stmt string, args ...any) string {
	if len(args) == 0 {
		return stmt
	}

	literals := make([]string, len(args))
	for i, arg := range args {
		literals[i] = renderValue(d, arg)
	}

	if d.Placeholder(1) != "?" {
		// Replace from the highest index down so $1 does not clobber $10.
		for i := len(args); i >= 1; i-- {
			stmt = strings.ReplaceAll(stmt, d.Placeholder(i), literals[i-1])
		}
		return stmt
	}

	var b strings.Builder
	next := 0
	for _, r := range stmt {
		if r == '?' && next < len(literals) {
			b.WriteString(literals[next])
			next++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func renderValue(d Dialect, v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return d.QuoteLiteral(val)
	case []byte:
		return "0x" + fmt.Sprintf("%x", val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return d.QuoteLiteral(val.UTC().Format(time.RFC3339Nano))
	case fmt.Stringer:
		return d.QuoteLiteral(val.String())
	default:
		return fmt.Sprint(val)
	}
}
