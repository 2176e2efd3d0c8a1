package deepgram

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// Query builds the query string sent with every streaming handshake and
// one-shot request.
//
// Empty strings and zero numbers are treated as unset and skipped.
// Booleans are only encoded when true, as "true". Lists become repeated
// keys.
type Query struct {
	values url.Values
}

// NewQuery returns an empty Query.
func NewQuery() *Query {
	return &Query{values: url.Values{}}
}

// Set adds a string parameter unless it is empty.
func (q *Query) Set(key, value string) *Query {
	if value != "" {
		q.values.Add(key, value)
	}
	return q
}

// SetInt adds an integer parameter unless it is zero.
func (q *Query) SetInt(key string, value int) *Query {
	if value != 0 {
		q.values.Add(key, strconv.Itoa(value))
	}
	return q
}

// SetFloat adds a float parameter unless it is zero.
func (q *Query) SetFloat(key string, value float64) *Query {
	if value != 0 {
		q.values.Add(key, strconv.FormatFloat(value, 'f', -1, 64))
	}
	return q
}

// SetBool adds key=true when value is true.
func (q *Query) SetBool(key string, value bool) *Query {
	if value {
		q.values.Add(key, "true")
	}
	return q
}

// SetList adds one key=value pair per non-empty element.
func (q *Query) SetList(key string, values []string) *Query {
	for _, v := range values {
		if v != "" {
			q.values.Add(key, v)
		}
	}
	return q
}

// SetAny encodes an arbitrary value with the same rules. Nil values are
// skipped; slices of any element type become repeated keys.
func (q *Query) SetAny(key string, value any) *Query {
	switch v := value.(type) {
	case nil:
	case string:
		q.Set(key, v)
	case bool:
		q.SetBool(key, v)
	case int:
		q.values.Add(key, strconv.Itoa(v))
	case int64:
		q.values.Add(key, strconv.FormatInt(v, 10))
	case float64:
		q.values.Add(key, strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		q.values.Add(key, strconv.FormatFloat(float64(v), 'f', -1, 32))
	case []string:
		q.SetList(key, v)
	case []any:
		for _, e := range v {
			q.SetAny(key, e)
		}
	default:
		q.values.Add(key, fmt.Sprint(v))
	}
	return q
}

// SetExtra adds every entry of extra as "extra.<key>". Keys are added in
// sorted order.
func (q *Query) SetExtra(extra map[string]any) *Query {
	for _, k := range sortedKeys(extra) {
		q.SetAny("extra."+k, extra[k])
	}
	return q
}

// SetRaw adds every entry of params under its own key, in sorted order.
func (q *Query) SetRaw(params map[string]any) *Query {
	for _, k := range sortedKeys(params) {
		q.SetAny(k, params[k])
	}
	return q
}

// Values returns the underlying values.
func (q *Query) Values() url.Values {
	return q.values
}

// Encode returns the URL-encoded query string.
func (q *Query) Encode() string {
	return q.values.Encode()
}

// buildURL joins base, path and the encoded query.
func buildURL(base, path string, q *Query) string {
	u := base + path
	if q == nil {
		return u
	}
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
