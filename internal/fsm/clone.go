package fsm

import "reflect"

// cloner is implemented by context types that know how to deep-copy
// themselves, such as ir.IRObject.
type cloner[C any] interface {
	Clone() C
}

// defaultCopier picks how contexts of type C are copied when WithClone is
// not given: through Clone() C when C has it, by assignment when C holds no
// maps, slices, pointers or interfaces, and by a reflective deep copy
// otherwise.
func defaultCopier[C any]() func(C) C {
	t := reflect.TypeFor[C]()
	if t.Kind() != reflect.Interface && t.Implements(reflect.TypeFor[cloner[C]]()) {
		return func(c C) C { return any(c).(cloner[C]).Clone() }
	}
	if !holdsReferences(t) {
		return func(c C) C { return c }
	}
	return deepCopy[C]
}

// holdsReferences reports whether values of t can share memory after
// assignment. Channels and funcs are not copied and do not count.
func holdsReferences(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return true
	case reflect.Array:
		return holdsReferences(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if holdsReferences(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// deepCopy copies maps, slices, pointers and interface values recursively.
// Pointer cycles are preserved. Unexported struct fields are copied by
// assignment; types that keep state there should implement Clone() C.
func deepCopy[C any](c C) C {
	if cl, ok := any(c).(cloner[C]); ok {
		return cl.Clone()
	}
	var out C
	copyValue(reflect.ValueOf(&out).Elem(), reflect.ValueOf(&c).Elem(), map[visit]reflect.Value{})
	return out
}

type visit struct {
	ptr uintptr
	typ reflect.Type
}

// copyValue writes a deep copy of src into dst, which must be settable and
// of the same type.
func copyValue(dst, src reflect.Value, seen map[visit]reflect.Value) {
	switch src.Kind() {
	case reflect.Pointer:
		if src.IsNil() {
			return
		}
		key := visit{src.Pointer(), src.Type()}
		if p, ok := seen[key]; ok {
			dst.Set(p)
			return
		}
		p := reflect.New(src.Type().Elem())
		seen[key] = p
		copyValue(p.Elem(), src.Elem(), seen)
		dst.Set(p)

	case reflect.Map:
		if src.IsNil() {
			return
		}
		m := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			v := reflect.New(src.Type().Elem()).Elem()
			copyValue(v, iter.Value(), seen)
			m.SetMapIndex(iter.Key(), v)
		}
		dst.Set(m)

	case reflect.Slice:
		if src.IsNil() {
			return
		}
		s := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := range src.Len() {
			copyValue(s.Index(i), src.Index(i), seen)
		}
		dst.Set(s)

	case reflect.Array:
		for i := range src.Len() {
			copyValue(dst.Index(i), src.Index(i), seen)
		}

	case reflect.Struct:
		dst.Set(src)
		for i := range src.NumField() {
			if f := dst.Field(i); f.CanSet() {
				copyValue(f, src.Field(i), seen)
			}
		}

	case reflect.Interface:
		if src.IsNil() {
			return
		}
		inner := src.Elem()
		v := reflect.New(inner.Type()).Elem()
		copyValue(v, inner, seen)
		dst.Set(v)

	default:
		dst.Set(src)
	}
}
