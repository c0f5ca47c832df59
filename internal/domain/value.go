// Package domain holds the document model produced by the mapper and
// persisted by the loader.
package domain

import "strings"

// Value is a node in a nested document: either a Scalar leaf or an Object.
type Value interface {
	isValue()
}

// Scalar is a leaf string value.
type Scalar string

// Object is a mapping from key to nested Value.
type Object map[string]Value

func (Scalar) isValue() {}
func (Object) isValue() {}

// SetDotted places v at the path described by a dotted key such as
// "contact.phone".
func (o Object) SetDotted(key, v string) {
	o.SetPath(strings.Split(key, "."), v)
}

// SetPath places v at path, creating intermediate objects as needed. A scalar
// met on the way is replaced by an object; the leaf overwrites whatever was
// there before.
func (o Object) SetPath(path []string, v string) {
	if len(path) == 0 {
		return
	}
	cur := o
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg].(Object)
		if !ok {
			next = Object{}
			cur[seg] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = Scalar(v)
}

// Get walks a path and returns the value found there, if any.
func (o Object) Get(path ...string) (Value, bool) {
	var cur Value = o
	for _, seg := range path {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
