// Package clone deep-copies payloads before they are handed to subscribers or
// store adapters. Copies keep the exact dynamic type of every value, including
// values held in interface fields and elements, so an int stays an int at any
// depth.
package clone

import (
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"

	"github.com/coachpo/herald/errs"
)

// Value returns a deep copy of v. Maps, slices, arrays, pointers and exported
// struct fields are copied recursively; unexported struct fields are copied
// shallowly and fields tagged `json:"-"` are shared. Channels, funcs and
// cyclic graphs fail with errs.CodeClone.
func Value(v any) (any, error) {
	c := copier{path: make(map[visit]struct{})}
	return c.value(v)
}

// MustValue is Value for payloads already known to be cloneable. It returns v
// unchanged if copying fails.
func MustValue(v any) any {
	out, err := Value(v)
	if err != nil {
		return v
	}
	return out
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

// copier tracks the references on the current path to detect cycles. Shared
// references that are not on the path are copied once per occurrence.
type copier struct {
	path map[visit]struct{}
}

func (c *copier) value(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t, nil
	case []byte:
		if t == nil {
			return t, nil
		}
		return append([]byte{}, t...), nil
	case json.RawMessage:
		if t == nil {
			return t, nil
		}
		return append(json.RawMessage{}, t...), nil
	case map[string]any:
		return c.mapAny(t)
	case []any:
		return c.sliceAny(t)
	default:
		out, err := c.walk(reflect.ValueOf(v))
		if err != nil {
			return nil, err
		}
		return out.Interface(), nil
	}
}

func (c *copier) mapAny(src map[string]any) (map[string]any, error) {
	if src == nil {
		return nil, nil
	}
	leave, err := c.enter(reflect.ValueOf(src))
	if err != nil {
		return nil, err
	}
	defer leave()

	out := make(map[string]any, len(src))
	for k, v := range src {
		cp, err := c.value(v)
		if err != nil {
			return nil, err
		}
		out[k] = cp
	}
	return out, nil
}

func (c *copier) sliceAny(src []any) ([]any, error) {
	if src == nil {
		return nil, nil
	}
	leave, err := c.enter(reflect.ValueOf(src))
	if err != nil {
		return nil, err
	}
	defer leave()

	out := make([]any, len(src))
	for i := range src {
		cp, err := c.value(src[i])
		if err != nil {
			return nil, err
		}
		out[i] = cp
	}
	return out, nil
}

func (c *copier) walk(rv reflect.Value) (reflect.Value, error) {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return reflect.Zero(rv.Type()), nil
		}
		inner, err := c.value(rv.Elem().Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(reflect.ValueOf(inner))
		return out, nil

	case reflect.Pointer:
		if rv.IsNil() {
			return reflect.Zero(rv.Type()), nil
		}
		leave, err := c.enter(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		defer leave()
		elem, err := c.walk(rv.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(rv.Type().Elem())
		out.Elem().Set(elem)
		return out, nil

	case reflect.Map:
		if rv.IsNil() {
			return reflect.Zero(rv.Type()), nil
		}
		leave, err := c.enter(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		defer leave()
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			val, err := c.walk(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key(), val)
		}
		return out, nil

	case reflect.Slice:
		if rv.IsNil() {
			return reflect.Zero(rv.Type()), nil
		}
		if rv.Len() > 0 {
			leave, err := c.enter(rv)
			if err != nil {
				return reflect.Value{}, err
			}
			defer leave()
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := c.walk(rv.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			elem, err := c.walk(rv.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil

	case reflect.Struct:
		out := reflect.New(rv.Type()).Elem()
		out.Set(rv)
		typ := rv.Type()
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() || field.Tag.Get("json") == "-" {
				continue
			}
			val, err := c.walk(rv.Field(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Field(i).Set(val)
		}
		return out, nil

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return reflect.Value{}, errs.New("clone/value", errs.CodeClone,
			errs.WithMessage(fmt.Sprintf("payload holds a %s", rv.Kind())))

	default:
		// Scalars of named types.
		return rv, nil
	}
}

func (c *copier) enter(rv reflect.Value) (func(), error) {
	key := visit{ptr: rv.Pointer(), typ: rv.Type()}
	if _, ok := c.path[key]; ok {
		return nil, errs.New("clone/value", errs.CodeClone,
			errs.WithMessage("payload contains a reference cycle"))
	}
	c.path[key] = struct{}{}
	return func() { delete(c.path, key) }, nil
}
