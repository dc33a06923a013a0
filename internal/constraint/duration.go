package constraint

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/automaton/internal/ir"
)

// DurationType selects how many hours a day and days a week hold.
type DurationType string

const (
	DurationWork    DurationType = "Work"
	DurationClassic DurationType = "Classic"
	DurationCustom  DurationType = "Custom"
)

// DurationUnits lists the unit letters in descending size.
var DurationUnits = []string{"w", "d", "h", "m", "s"}

const (
	msSecond = int64(1000)
	msMinute = 60 * msSecond
	msHour   = 60 * msMinute
)

// Conversions maps a unit letter to its length in milliseconds.
type Conversions map[string]int64

// ClassicConversions uses 24 hour days and 7 day weeks.
func ClassicConversions() Conversions {
	return Conversions{
		"w": 7 * 24 * msHour,
		"d": 24 * msHour,
		"h": msHour,
		"m": msMinute,
		"s": msSecond,
	}
}

// WorkConversions uses 8 hour days and 5 day weeks.
func WorkConversions() Conversions {
	return Conversions{
		"w": 5 * 8 * msHour,
		"d": 8 * msHour,
		"h": msHour,
		"m": msMinute,
		"s": msSecond,
	}
}

// DurationConversions builds the conversion table of a duration constraint.
// Custom tables read config.conversions; units missing there keep their
// Classic length. A missing or unknown type means Work.
func DurationConversions(c *ir.Constraint) Conversions {
	var cfg ir.IRObject
	if c != nil {
		cfg = c.Config
	}
	switch DurationType(ir.Text(cfg.Get("type"))) {
	case DurationClassic:
		return ClassicConversions()
	case DurationCustom:
		conv := ClassicConversions()
		if custom, ok := cfg.Get("conversions").(ir.IRObject); ok {
			for _, unit := range DurationUnits {
				if ms, ok := custom[unit].(ir.IRInt); ok && ms > 0 {
					conv[unit] = int64(ms)
				}
			}
		}
		return conv
	default:
		return WorkConversions()
	}
}

var durationToken = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*([wdhms])`)

// ParseDuration sums every <number><unit> token of text into milliseconds.
// The text must consist of such tokens only; ok is false otherwise.
func ParseDuration(text string, conv Conversions) (ms int64, ok bool) {
	s := strings.ToLower(strings.TrimSpace(normalize(text)))
	if s == "" {
		return 0, false
	}

	matches := durationToken.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, false
	}

	total := new(apd.Decimal)
	pos := 0
	for _, m := range matches {
		if strings.TrimSpace(s[pos:m[0]]) != "" {
			return 0, false
		}
		pos = m[1]

		num, _, err := apd.NewFromString(strings.Replace(s[m[2]:m[3]], ",", ".", 1))
		if err != nil {
			return 0, false
		}
		unit, found := conv[s[m[4]:m[5]]]
		if !found {
			return 0, false
		}
		part := new(apd.Decimal)
		if _, err := apd.BaseContext.Mul(part, num, apd.New(unit, 0)); err != nil {
			return 0, false
		}
		if _, err := apd.BaseContext.Add(total, total, part); err != nil {
			return 0, false
		}
	}
	if strings.TrimSpace(s[pos:]) != "" {
		return 0, false
	}

	rounded := new(apd.Decimal)
	if _, err := apd.BaseContext.WithPrecision(34).RoundToIntegralValue(rounded, total); err != nil {
		return 0, false
	}
	v, err := rounded.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatDuration renders milliseconds with the largest units first, the
// inverse of ParseDuration for whole units.
func FormatDuration(ms int64, conv Conversions) string {
	if ms <= 0 {
		return "0" + DurationUnits[len(DurationUnits)-1]
	}
	var b strings.Builder
	rest := ms
	for _, unit := range DurationUnits {
		size := conv[unit]
		if size <= 0 || rest < size {
			continue
		}
		n := rest / size
		rest -= n * size
		b.WriteString(strconv.FormatInt(n, 10))
		b.WriteString(unit)
	}
	if b.Len() == 0 {
		return "0" + DurationUnits[len(DurationUnits)-1]
	}
	return b.String()
}
