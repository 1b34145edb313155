package cache

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// KeySeparator defines the delimiter used between the tag and digest of a key.
const KeySeparator = "::"

const bindingSeparator = "|"

// Key identifies a cached result set. Tag is the invalidation group the entry
// belongs to and Digest identifies the query inside that group.
type Key struct {
	Tag    string
	Digest string
}

// String renders the key as len(tag):tag::digest. The length prefix keeps
// keys apart when a tag or a raw digest itself contains the separator.
func (k Key) String() string {
	return strconv.Itoa(len(k.Tag)) + ":" + k.Tag + KeySeparator + k.Digest
}

// IsZero reports whether the key was never computed.
func (k Key) IsZero() bool {
	return k.Tag == "" && k.Digest == ""
}

// KeyEncoder derives a stable key from an entity tag and a compiled query.
// Implementations must be pure: no I/O and no dependency on map iteration order.
type KeyEncoder interface {
	EncodeKey(tag string, q Query) Key
}

// KeyEncoderFunc adapts a function to the KeyEncoder interface.
type KeyEncoderFunc func(tag string, q Query) Key

// EncodeKey implements KeyEncoder.
func (f KeyEncoderFunc) EncodeKey(tag string, q Query) Key {
	return f(tag, q)
}

type hashedKeyEncoder struct{}

// NewDefaultKeyEncoder returns the default encoder. It hashes the tag, the
// query text and the canonical bindings with XXH3-128, which keeps keys short
// at the cost of a theoretical collision risk.
func NewDefaultKeyEncoder() KeyEncoder {
	return hashedKeyEncoder{}
}

func (hashedKeyEncoder) EncodeKey(tag string, q Query) Key {
	h := xxh3.New()
	_, _ = h.WriteString(tag)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(q.SQL)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(CanonicalBindings(q.Args))
	sum := h.Sum128().Bytes()
	return Key{Tag: tag, Digest: hex.EncodeToString(sum[:])}
}

type rawKeyEncoder struct{}

// NewRawKeyEncoder returns an encoder that skips hashing. Keys are collision
// free but grow with the query text and its bindings. The digest may contain
// KeySeparator.
func NewRawKeyEncoder() KeyEncoder {
	return rawKeyEncoder{}
}

func (rawKeyEncoder) EncodeKey(tag string, q Query) Key {
	return Key{Tag: tag, Digest: q.SQL + KeySeparator + CanonicalBindings(q.Args)}
}

// CanonicalBindings renders positional bindings in a type-tagged form such as
// int:5|str:"abc". Equal bindings always render identically.
func CanonicalBindings(args []any) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = canonicalValue(arg)
	}
	return strings.Join(parts, bindingSeparator)
}

var timeType = reflect.TypeOf(time.Time{})

func canonicalValue(v any) string {
	if v == nil {
		return "nil"
	}

	switch tv := v.(type) {
	case string:
		return "str:" + strconv.Quote(tv)
	case []byte:
		return "bytes:" + hex.EncodeToString(tv)
	case bool:
		return "bool:" + strconv.FormatBool(tv)
	case time.Time:
		return "time:" + tv.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return "duration:" + tv.String()
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	if valuer, ok := v.(driver.Valuer); ok && (rt.Kind() != reflect.Ptr || !rv.IsNil()) {
		if dv, err := valuer.Value(); err == nil {
			return "valuer:" + canonicalValue(dv)
		}
	}

	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int:" + strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "uint:" + strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return "float:" + strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return "float:" + strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.String:
		return "str:" + strconv.Quote(rv.String())
	case reflect.Bool:
		return "bool:" + strconv.FormatBool(rv.Bool())
	case reflect.Func:
		// function identity is only stable within one process
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return canonicalValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "list:nil"
		}
		return canonicalList(rv)
	case reflect.Array:
		return canonicalList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return canonicalMap(rv)
	case reflect.Struct:
		if rt == timeType {
			return "time:" + rv.Interface().(time.Time).UTC().Format(time.RFC3339Nano)
		}
		return canonicalStruct(rv, rt)
	}

	return jsonFallback(v)
}

func canonicalList(rv reflect.Value) string {
	n := rv.Len()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = canonicalValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("list[%d]:{%s}", n, strings.Join(parts, ","))
}

func canonicalMap(rv reflect.Value) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			k: canonicalValue(iter.Key().Interface()),
			v: canonicalValue(iter.Value().Interface()),
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return fmt.Sprintf("map[%d]:{%s}", len(parts), strings.Join(parts, ","))
}

func canonicalStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+canonicalValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:%s{%s}", rt.Name(), strings.Join(parts, ","))
}

func jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
