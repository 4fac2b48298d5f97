package fetch

import (
	"math"
	"reflect"
)

// Dependencies is an ordered snapshot of the values a fetch depends on.
type Dependencies []any

// Equal compares two snapshots element by element.
//
// Basic values (bools, numbers, strings) compare by value, and NaN equals
// NaN. Reference kinds (pointers, maps, slices, funcs, chans) compare by
// identity. Remaining kinds compare with == when they are comparable.
func (d Dependencies) Equal(other Dependencies) bool {
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if !sameValue(d[i], other[i]) {
			return false
		}
	}
	return true
}

// NonBasic returns the indexes of values that are not bools, numbers or
// strings. Such values make the comparison unreliable.
func (d Dependencies) NonBasic() []int {
	var idx []int
	for i, v := range d {
		if v != nil && !isBasic(reflect.ValueOf(v).Kind()) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (d Dependencies) clone() Dependencies {
	if d == nil {
		return Dependencies{}
	}
	out := make(Dependencies, len(d))
	copy(out, d)
	return out
}

func isBasic(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Float32, reflect.Float64:
		fa, fb := va.Float(), vb.Float()
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if va.Kind() == reflect.Slice && va.Len() != vb.Len() {
			return false
		}
		return va.Pointer() == vb.Pointer()
	}

	if va.Type().Comparable() {
		return safeEqual(a, b)
	}
	return false
}

// safeEqual guards against structs or arrays that hold non-comparable
// values behind interface fields.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
