package script

import (
	"fmt"
	"reflect"
	"strings"

	"go.starlark.net/starlark"
)

// ToValue converts plain Go data into a fresh, mutable Starlark value.
// Struct fields use their msgpack names so scripts see the same keys the
// state store does.
func ToValue(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case []byte:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float64:
		return starlark.Float(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := ToValue(e)
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for k, e := range v {
			sv, err := ToValue(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	value := reflect.ValueOf(v)
	switch value.Kind() {
	case reflect.Bool:
		return starlark.Bool(value.Bool()), nil
	case reflect.String:
		return starlark.String(value.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(value.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return starlark.MakeUint64(value.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(value.Float()), nil

	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, value.Len())
		for i := range elems {
			sv, err := ToValue(value.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil

	case reflect.Map:
		d := starlark.NewDict(value.Len())
		iter := value.MapRange()
		for iter.Next() {
			k, err := ToValue(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			e, err := ToValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(k, e); err != nil {
				return nil, err
			}
		}
		return d, nil

	case reflect.Struct:
		typ := value.Type()
		d := starlark.NewDict(value.NumField())
		for i := 0; i < value.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			name := fieldName(field)
			if name == "-" {
				continue
			}
			e, err := ToValue(value.Field(i).Interface())
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(name), e); err != nil {
				return nil, err
			}
		}
		return d, nil

	case reflect.Pointer, reflect.Interface:
		if value.IsNil() {
			return starlark.None, nil
		}
		return ToValue(value.Elem().Interface())
	}

	return nil, fmt.Errorf("unsupported value of type %T", v)
}

// FromValue converts a Starlark value back into plain Go data.
// Integers become int64 (uint64 when they only fit unsigned), dicts must
// have string keys, and tuples and sets become lists.
func FromValue(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Bytes:
		return string(v), nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		if u, ok := v.Uint64(); ok {
			return u, nil
		}
		return nil, fmt.Errorf("integer %s out of range", v)
	case starlark.Float:
		return float64(v), nil
	case *starlark.List:
		return fromIterable(v, v.Len())
	case starlark.Tuple:
		return fromIterable(v, v.Len())
	case *starlark.Set:
		return fromIterable(v, v.Len())
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return nil, fmt.Errorf("dict key %s is %s, not a string", item[0], item[0].Type())
			}
			e, err := FromValue(item[1])
			if err != nil {
				return nil, err
			}
			out[key] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %s", v.Type())
}

func fromIterable(it starlark.Iterable, n int) ([]any, error) {
	out := make([]any, 0, n)
	iter := it.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		e, err := FromValue(x)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("msgpack")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}
