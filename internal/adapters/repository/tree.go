package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// splitPath validates p and returns its segments.
func splitPath(p string) ([]string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return segs, nil
}

// splitAll validates paths and rejects any pair where one is a prefix of
// the other.
func splitAll(paths []string) ([][]string, error) {
	out := make([][]string, len(paths))
	for i, p := range paths {
		segs, err := splitPath(p)
		if err != nil {
			return nil, err
		}
		out[i] = segs
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if isPrefix(out[i], out[j]) || isPrefix(out[j], out[i]) {
				return nil, fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, paths[i], paths[j])
			}
		}
	}
	return out, nil
}

func isPrefix(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// getAt returns the node under root at segs, or nil.
func getAt(root any, segs []string) any {
	cur := root
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[s]
		if !ok {
			return nil
		}
	}
	return cur
}

// setAt writes v under root at segs and returns the new root. Scalars on
// the way are replaced by objects; empty parents are pruned.
func setAt(root any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := root.(map[string]any)
	if !ok {
		if v == nil {
			return root
		}
		m = make(map[string]any, 1)
	}
	child := setAt(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// clone deep-copies v into store form: empty objects and nil children
// vanish, and plain ints widen to int64.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil
		}
		out := make(map[string]any, len(t))
		for k, c := range t {
			if cc := clone(c); cc != nil {
				out[k] = cc
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case map[string]int64:
		if len(t) == 0 {
			return nil
		}
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = c
		}
		return out
	case map[string]bool:
		if len(t) == 0 {
			return nil
		}
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = c
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = clone(c)
		}
		return out
	case int:
		return int64(t)
	case int32:
		return int64(t)
	default:
		return v
	}
}

// number reads v as a number. isInt is set when i holds the exact value.
func number(v any) (i int64, f float64, isInt, ok bool) {
	switch n := v.(type) {
	case int64:
		return n, float64(n), true, true
	case int:
		return int64(n), float64(n), true, true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<63 {
			return int64(n), n, true, true
		}
		return 0, n, false, true
	case json.Number:
		if iv, err := n.Int64(); err == nil {
			return iv, float64(iv), true, true
		}
		fv, err := n.Float64()
		if err != nil {
			return 0, 0, false, false
		}
		return 0, fv, false, true
	}
	return 0, 0, false, false
}

// typeRank orders value kinds: absent, false, true, numbers, strings, objects.
func typeRank(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case bool:
		if t {
			return 2
		}
		return 1
	case string:
		return 4
	case map[string]any:
		return 5
	}
	if _, _, _, ok := number(v); ok {
		return 3
	}
	return 5
}

// compareValues orders two stored values.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 3:
		ai, af, aInt, _ := number(a)
		bi, bf, bInt, _ := number(b)
		if aInt && bInt {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			}
			return 0
		}
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case 4:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

// selectChildren applies q to the children of node.
func selectChildren(node any, q Query) []Child {
	m, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	type keyed struct {
		child Child
		order any
	}
	rows := make([]keyed, 0, len(m))
	for k, v := range m {
		var order any = k
		if q.OrderByChild != "" {
			order = getAt(v, strings.Split(q.OrderByChild, "/"))
		}
		if q.EqualTo != nil && compareValues(order, q.EqualTo) != 0 {
			continue
		}
		rows = append(rows, keyed{child: Child{Key: k, Value: v}, order: order})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := compareValues(rows[i].order, rows[j].order); c != 0 {
			return c < 0
		}
		return rows[i].child.Key < rows[j].child.Key
	})

	out := make([]Child, 0, len(rows))
	if q.Descending {
		for i := len(rows) - 1; i >= 0; i-- {
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
			out = append(out, Child{Key: rows[i].child.Key, Value: clone(rows[i].child.Value)})
		}
		return out
	}
	for _, r := range rows {
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		out = append(out, Child{Key: r.child.Key, Value: clone(r.child.Value)})
	}
	return out
}
