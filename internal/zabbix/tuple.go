// Package zabbix serializes metric tuples into the zabbix_sender line
// protocol and submits batches through the external sender binary.
package zabbix

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Tuple is one timestamped sample: host, item key, epoch clock, value.
// Value may be a number or a string; strings are escaped on serialization.
type Tuple struct {
	Host  string
	Key   string
	Clock int64
	Value any
}

// Serialize renders tuples in zabbix_sender input format, one line each:
//
//	host key clock value
//
// Keys containing a space or bracket are quoted. String values containing
// a space, quote, or newline are escaped and quoted. Numbers pass through
// unquoted; floats render in plain decimal notation, never exponent form.
func Serialize(tuples []Tuple) []byte {
	var buf bytes.Buffer
	for _, t := range tuples {
		key := t.Key
		if strings.ContainsAny(key, " [") {
			key = `"` + key + `"`
		}
		fmt.Fprintf(&buf, "%s %s %d %s\n", t.Host, key, t.Clock, formatValue(t.Value))
	}
	return buf.Bytes()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \"\n") {
			val = strings.ReplaceAll(val, `\`, `\\`)
			val = strings.ReplaceAll(val, `"`, `\"`)
			return `"` + val + `"`
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}
