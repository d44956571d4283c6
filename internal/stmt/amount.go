package stmt

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencyMarks = []string{"₹", "$", "€", "£", "INR", "Rs.", "Rs"}

// CleanAmount normalises a statement amount such as "₹ 1,234.50" or
// "(12.00)" to plain numeric text ("1234.50", "-12.00"). Null cells clean
// to "". Text that is not an amount is returned trimmed and unchanged.
func CleanAmount(s string) string {
	if IsNull(s) {
		return ""
	}
	v := strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		neg = true
		v = strings.TrimSuffix(strings.TrimPrefix(v, "("), ")")
	}
	for _, m := range currencyMarks {
		v = strings.ReplaceAll(v, m, "")
	}
	v = strings.ReplaceAll(v, ",", "")
	v = strings.ReplaceAll(v, " ", "")
	if _, err := decimal.NewFromString(v); err != nil {
		return strings.TrimSpace(s)
	}
	if neg && !strings.HasPrefix(v, "-") {
		v = "-" + v
	}
	return v
}

// ParseAmount parses a cell as a number after CleanAmount. The boolean is
// false for null or non-numeric cells.
func ParseAmount(s string) (decimal.Decimal, bool) {
	v := CleanAmount(s)
	if v == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
