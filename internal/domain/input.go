package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// WeekdayName returns the lowercase name of a 0-6 weekday.
func WeekdayName(dow int) string {
	if dow < 0 || dow >= len(weekdayNames) {
		return ""
	}
	return weekdayNames[dow]
}

type inputKind uint8

const (
	kindUnset inputKind = iota
	kindInt
	kindName
	kindOther
)

// HourInput is an hour of day as supplied by a caller. Build one with HourOf
// for typed callers or HourFrom at dynamic boundaries (decoded JSON), then
// call Normalize.
type HourInput struct {
	kind inputKind
	n    int
	raw  any
}

// HourOf wraps an integer hour.
func HourOf(h int) HourInput {
	return HourInput{kind: kindInt, n: h, raw: h}
}

// HourFrom classifies a dynamically typed hour. Only integers are hours.
func HourFrom(v any) HourInput {
	if n, ok := asInt(v); ok {
		return HourInput{kind: kindInt, n: n, raw: v}
	}
	if v == nil {
		return HourInput{}
	}
	return HourInput{kind: kindOther, raw: v}
}

// Normalize returns the hour in 0..23, an ErrType error for non-integers, or an
// ErrValidation error when out of range.
func (h HourInput) Normalize() (int, error) {
	switch h.kind {
	case kindInt:
		if h.n < 0 || h.n > 23 {
			return 0, validationError("hour", h.n, "must be between 0 and 23 inclusive")
		}
		return h.n, nil
	case kindUnset:
		return 0, typeError("hour", nil, "is required")
	default:
		return 0, typeError("hour", h.raw, fmt.Sprintf("must be an integer, got %T", h.raw))
	}
}

// DayInput is a day of week as supplied by a caller: an integer 0-6 with
// Sunday = 0, or a weekday name in any letter case.
type DayInput struct {
	kind inputKind
	n    int
	name string
	raw  any
}

// DayOf wraps an integer day of week.
func DayOf(d int) DayInput {
	return DayInput{kind: kindInt, n: d, raw: d}
}

// DayNamed wraps a weekday name such as "Monday".
func DayNamed(name string) DayInput {
	return DayInput{kind: kindName, name: name, raw: name}
}

// DayFrom classifies a dynamically typed day of week.
func DayFrom(v any) DayInput {
	if n, ok := asInt(v); ok {
		return DayInput{kind: kindInt, n: n, raw: v}
	}
	switch t := v.(type) {
	case nil:
		return DayInput{}
	case string:
		return DayNamed(t)
	default:
		return DayInput{kind: kindOther, raw: v}
	}
}

// Normalize returns the day of week in 0..6.
func (d DayInput) Normalize() (int, error) {
	switch d.kind {
	case kindInt:
		if d.n < 0 || d.n > 6 {
			return 0, validationError("day of week", d.n, "must be between 0 and 6 inclusive")
		}
		return d.n, nil
	case kindName:
		lower := strings.ToLower(strings.TrimSpace(d.name))
		for i, name := range weekdayNames {
			if name == lower {
				return i, nil
			}
		}
		return 0, validationError("day of week", d.name, "is not a weekday name")
	case kindUnset:
		return 0, typeError("day of week", nil, "is required")
	default:
		return 0, typeError("day of week", d.raw, fmt.Sprintf("must be an integer or weekday name, got %T", d.raw))
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int8:
		return int(t), true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint8:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
