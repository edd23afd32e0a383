package zabbix

import (
	"strings"
	"testing"
)

func TestSerialize(t *testing.T) {
	cases := []struct {
		name  string
		tuple Tuple
		want  string
	}{
		{
			name:  "integer value",
			tuple: Tuple{Host: "waf-01", Key: "waf.collector.status", Clock: 1748736000, Value: 1},
			want:  "waf-01 waf.collector.status 1748736000 1\n",
		},
		{
			name:  "int64 value",
			tuple: Tuple{Host: "waf-01", Key: "waf.collector.timestamp", Clock: 1748736000, Value: int64(1748736000)},
			want:  "waf-01 waf.collector.timestamp 1748736000 1748736000\n",
		},
		{
			name:  "float stays decimal",
			tuple: Tuple{Host: "waf-01", Key: "waf.site.bytes_in_rate_avg[shop]", Clock: 1748736000, Value: 12582912.0},
			want:  "waf-01 waf.site.bytes_in_rate_avg[shop] 1748736000 12582912\n",
		},
		{
			name:  "fractional float",
			tuple: Tuple{Host: "waf-01", Key: "waf.site.conn_rate_avg[shop]", Clock: 1748736000, Value: 2.5},
			want:  "waf-01 waf.site.conn_rate_avg[shop] 1748736000 2.5\n",
		},
		{
			name:  "key with space is quoted",
			tuple: Tuple{Host: "waf-01", Key: "waf.site.status[my shop]", Clock: 10, Value: 1},
			want:  "waf-01 \"waf.site.status[my shop]\" 10 1\n",
		},
		{
			name:  "plain string unquoted",
			tuple: Tuple{Host: "waf-01", Key: "waf.collector.version", Clock: 10, Value: "1.4.2"},
			want:  "waf-01 waf.collector.version 10 1.4.2\n",
		},
		{
			name:  "string with spaces quoted",
			tuple: Tuple{Host: "waf-01", Key: "waf.collector.note", Clock: 10, Value: "hello world"},
			want:  "waf-01 waf.collector.note 10 \"hello world\"\n",
		},
		{
			name:  "string with quotes escaped",
			tuple: Tuple{Host: "waf-01", Key: "k", Clock: 10, Value: `{"data":[]}`},
			want:  "waf-01 k 10 \"{\\\"data\\\":[]}\"\n",
		},
		{
			name:  "backslashes escaped before quotes",
			tuple: Tuple{Host: "waf-01", Key: "k", Clock: 10, Value: `a\b "c"`},
			want:  "waf-01 k 10 \"a\\\\b \\\"c\\\"\"\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := string(Serialize([]Tuple{tc.tuple}))
			if got != tc.want {
				t.Errorf("Serialize() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSerializePreservesOrder(t *testing.T) {
	tuples := []Tuple{
		{Host: "h", Key: "first", Clock: 1, Value: 1},
		{Host: "h", Key: "second", Clock: 2, Value: 2},
		{Host: "h", Key: "third", Clock: 3, Value: 3},
	}

	lines := strings.Split(strings.TrimRight(string(Serialize(tuples)), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	for i, want := range []string{"first", "second", "third"} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want key %q", i, lines[i], want)
		}
	}
}

func TestSerializeDiscoveryRoundTrip(t *testing.T) {
	// A discovery document survives the escape rules: the quoted value,
	// unescaped, is the original JSON.
	doc := `{"data":[{"{#SITE_NAME}":"shop"}]}`
	line := string(Serialize([]Tuple{{Host: "h", Key: DiscoveryKey, Clock: 1, Value: doc}}))

	want := `h waf.sites.discovery 1 "{\"data\":[{\"{#SITE_NAME}\":\"shop\"}]}"` + "\n"
	if line != want {
		t.Errorf("Serialize() = %q, want %q", line, want)
	}
}
