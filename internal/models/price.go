package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidMoney is returned when a price cannot be parsed.
var ErrInvalidMoney = errors.New("invalid money amount")

// Money is an amount in BRL centavos.
type Money int64

// ParseMoney accepts "69.000", "69.000,50", "69000", "69000.50" and an optional "R$" prefix.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, ErrInvalidMoney
	}

	var whole, frac string
	switch {
	case strings.Contains(s, ","):
		var ok bool
		whole, frac, ok = strings.Cut(s, ",")
		if !ok || strings.Contains(frac, ",") || strings.Contains(frac, ".") {
			return 0, ErrInvalidMoney
		}
		if !validThousands(whole) {
			return 0, ErrInvalidMoney
		}
		whole = strings.ReplaceAll(whole, ".", "")
	case strings.Contains(s, "."):
		groups := strings.Split(s, ".")
		last := groups[len(groups)-1]
		if len(groups) == 2 && len(last) <= 2 {
			whole, frac = groups[0], last
		} else if validThousands(s) {
			whole = strings.ReplaceAll(s, ".", "")
		} else {
			return 0, ErrInvalidMoney
		}
	default:
		whole = s
	}

	if whole == "" || !digitsOnly(whole) || !digitsOnly(frac) || len(frac) > 2 {
		return 0, ErrInvalidMoney
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/100 {
		return 0, ErrInvalidMoney
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	return Money(units*100 + cents), nil
}

// validThousands reports whether s is digits grouped by dots in threes.
func validThousands(s string) bool {
	groups := strings.Split(s, ".")
	if len(groups) == 1 {
		return true
	}
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Plain renders the amount as "69.000,00".
func (m Money) Plain() string {
	units := int64(m) / 100
	cents := int64(m) % 100
	digits := strconv.FormatInt(units, 10)

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s,%02d", b.String(), cents)
}

// String renders the amount as "R$ 69.000,00".
func (m Money) String() string {
	return "R$ " + m.Plain()
}

// UnmarshalJSON accepts a centavos number or a price written as text.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseMoney(s)
		if err != nil {
			return fmt.Errorf("price %q: %w", s, err)
		}
		*m = parsed
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*m = Money(i)
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("price %s: %w", data, ErrInvalidMoney)
	}
	*m = Money(math.Round(f))
	return nil
}
