package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns returns the column names from the "db" tags of T in declaration order.
// Embedded structs are flattened in place; fields tagged "-" or untagged are skipped.
// Repositories call it once at package init to build their select lists.
//
// Usage:
//
//	var lineColumns = ExtractDBColumns[purchase_order.Line]()
//	// ["id", "order_id", "item_id", "ordered_quantity", "received_quantity", "fulfilled_at"]
func ExtractDBColumns[T any]() []string {
	var zero T
	fields := fieldsOf(reflect.TypeOf(zero))
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.column
	}
	return cols
}

// dbField locates a tagged field, possibly inside embedded structs.
type dbField struct {
	column string
	index  []int
}

// fieldCache holds the flattened field list per struct type.
var fieldCache sync.Map // map[reflect.Type][]dbField

func fieldsOf(t reflect.Type) []dbField {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]dbField)
	}

	var fields []dbField
	if t.Kind() == reflect.Struct {
		fields = collectFields(t, nil)
	}
	fieldCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, prefix []int) []dbField {
	var out []dbField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Struct {
				out = append(out, collectFields(ft, index)...)
			}
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" || !field.IsExported() {
			continue
		}
		out = append(out, dbField{column: tag, index: index})
	}
	return out
}

// StructToMap converts a struct (or pointer to struct) into column -> value using "db" tags.
// Used with squirrel's SetMap for inserts. Returns nil for non-struct values.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	fields := fieldsOf(rv.Type())
	res := make(map[string]any, len(fields))
	for _, f := range fields {
		res[f.column] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}
