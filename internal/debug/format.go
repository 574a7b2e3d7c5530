package debug

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var markupTagPattern = regexp.MustCompile(`<[^>]*>`)

var safeNameReplacer = strings.NewReplacer(
	" ", "-",
	":", "-",
	"(", "-",
	")", "-",
	"/", "-",
	`\`, "-",
	"·", "-",
	`"`, "-",
	"'", "-",
)

// MakeSafeName turns a display name into a DOM and CSS safe identifier.
// Consecutive separators are kept, so "a  b" becomes "a--b".
func MakeSafeName(name string) string {
	name = markupTagPattern.ReplaceAllString(name, "")
	name = strings.TrimSpace(strings.ToLower(name))
	return safeNameReplacer.Replace(name)
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// ConvertSize formats a byte count with a binary unit, e.g. "3.37 MB".
func ConvertSize(size float64) string {
	index := 0
	for size >= 1024 && index < len(sizeUnits)-1 {
		size /= 1024
		index++
	}
	return formatNumber(roundTo(size, 3)) + " " + sizeUnits[index]
}

// MakeDebugValue renders a short, type-aware representation of v.
func MakeDebugValue(v any) string {
	switch value := v.(type) {
	case nil:
		return "null"
	case bool:
		if value {
			return "true"
		}
		return "false"
	case string:
		return "'" + strings.ReplaceAll(value, "'", `\'`) + "'"
	case float32:
		return formatNumber(float64(value))
	case float64:
		return formatNumber(value)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(value)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return "array"
	case reflect.Bool:
		return MakeDebugValue(rv.Bool())
	case reflect.String:
		return MakeDebugValue(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return formatNumber(rv.Float())
	}
	return fmt.Sprintf("instanceof %T", v)
}

// RoundVersion drops a trailing zero patch, and a zero minor with it:
// "1.2.0" becomes "1.2" and "1.0.0" becomes "1".
func RoundVersion(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) > 2 && parts[2] == "0" {
		parts = append(parts[:2], parts[3:]...)
		if parts[1] == "0" {
			parts = append(parts[:1], parts[2:]...)
		}
	}
	return strings.Join(parts, ".")
}

// RoundSecondsToMilliseconds converts seconds to milliseconds rounded to
// precision decimal places.
func RoundSecondsToMilliseconds(seconds float64, precision int) float64 {
	return roundTo(seconds*1000, precision)
}

func roundTo(value float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
