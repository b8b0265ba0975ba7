package clickhouse

import (
	"fmt"
	"reflect"
	"strings"
)

type column struct {
	name   string
	chType string
}

// table describes one ReplacingMergeTree table derived from a record type.
type table struct {
	name    string
	key     string
	columns []column
	custom  []string
}

func newTable(name, key string, proto any, custom []string) table {
	t := table{name: name, key: key, custom: custom}
	rt := reflect.TypeOf(proto)
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag := f.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		t.columns = append(t.columns, column{name: tag, chType: typeOf(f.Type)})
	}
	return t
}

func typeOf(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "Int64"
	case reflect.Bool:
		return "Bool"
	case reflect.Slice:
		return "Array(String)"
	default:
		return "String"
	}
}

func (t table) has(name string) bool {
	for _, c := range t.columns {
		if c.name == name {
			return true
		}
	}
	return false
}

func (t table) createDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.name)
	for _, c := range t.columns {
		fmt.Fprintf(&b, "\t%s %s,\n", c.name, c.chType)
	}
	b.WriteString("\tversion UInt64\n")
	b.WriteString(") ENGINE = ReplacingMergeTree(version)\n")
	if t.has("date_time") {
		b.WriteString("PARTITION BY toYYYYMM(toDate(date_time))\n")
	}
	fmt.Fprintf(&b, "ORDER BY (%s)", t.key)
	return b.String()
}

// customDDL adds one String column per custom tracking parameter.
func (t table) customDDL() []string {
	out := make([]string, 0, len(t.custom))
	for _, p := range t.custom {
		if t.has(p) {
			continue
		}
		out = append(out, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s String DEFAULT ''", t.name, p))
	}
	return out
}

func (t table) names() []string {
	out := make([]string, 0, len(t.columns)+len(t.custom)+1)
	for _, c := range t.columns {
		out = append(out, c.name)
	}
	for _, p := range t.custom {
		if !t.has(p) {
			out = append(out, p)
		}
	}
	return append(out, "version")
}

func (t table) insertSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s)", t.name, strings.Join(t.names(), ", "))
}

// values orders fields as insertSQL names them, converted to the column types.
func (t table) values(fields map[string]any, version uint64) []any {
	out := make([]any, 0, len(t.columns)+len(t.custom)+1)
	for _, c := range t.columns {
		out = append(out, convert(fields[c.name], c.chType))
	}
	for _, p := range t.custom {
		if t.has(p) {
			continue
		}
		s, _ := fields[p].(string)
		out = append(out, s)
	}
	return append(out, version)
}

func convert(v any, chType string) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case []string:
		if x == nil {
			return []string{}
		}
		return x
	case nil:
		switch chType {
		case "Int64":
			return int64(0)
		case "Bool":
			return false
		case "Array(String)":
			return []string{}
		}
		return ""
	}
	return v
}
