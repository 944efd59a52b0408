package runtime

import (
	"quill/interpreter-go/pkg/fir"
)

//-----------------------------------------------------------------------------
// Range iteration
//-----------------------------------------------------------------------------

// RangeIter walks the concrete values a range produces. The end is inclusive.
type RangeIter struct {
	curr int64
	step int64
	end  int64
}

func NewRangeIter(start, step, end int64) *RangeIter {
	return &RangeIter{curr: start, step: step, end: end}
}

func (it *RangeIter) Next() (int64, bool) {
	if (it.step > 0 && it.curr <= it.end) || (it.step < 0 && it.curr >= it.end) {
		v := it.curr
		it.curr += it.step
		return v, true
	}
	return 0, false
}

// MakeRange resolves a range against an array of the given length. Open
// bounds default by step sign: ascending ranges run 0..length-1, descending
// ranges run length-1..0. A zero step fails immediately.
func MakeRange(length int, r RangeValue, span fir.PackageSpan) (*RangeIter, *Error) {
	if r.Step == 0 {
		return nil, RangeStepZeroError(span)
	}
	var start, end int64
	if r.Step > 0 {
		start, end = 0, int64(length)-1
	} else {
		start, end = int64(length)-1, 0
	}
	if r.Start != nil {
		start = *r.Start
	}
	if r.End != nil {
		end = *r.End
	}
	return NewRangeIter(start, r.Step, end), nil
}

//-----------------------------------------------------------------------------
// Reads
//-----------------------------------------------------------------------------

// IndexArray reads one element. Indices must be non-negative; an in-bounds
// failure is reported distinctly from an invalid index.
func IndexArray(items []Value, index int64, span fir.PackageSpan) (Value, *Error) {
	if index < 0 {
		return nil, InvalidIndexError(index, span)
	}
	if index >= int64(len(items)) {
		return nil, IndexOutOfRangeError(index, span)
	}
	return items[index], nil
}

// SliceArray reads every element the range produces. An empty-producing range
// yields an empty slice, not an error.
func SliceArray(items []Value, r RangeValue, span fir.PackageSpan) ([]Value, *Error) {
	iter, err := MakeRange(len(items), r, span)
	if err != nil {
		return nil, err
	}
	var out []Value
	for idx, ok := iter.Next(); ok; idx, ok = iter.Next() {
		v, err := IndexArray(items, idx, span)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

//-----------------------------------------------------------------------------
// Copy-updates
//-----------------------------------------------------------------------------

// UpdateIndexSingle builds a copy of items with one element replaced.
func UpdateIndexSingle(items []Value, index int64, value Value, span fir.PackageSpan) ([]Value, *Error) {
	if index < 0 {
		return nil, InvalidNegativeIntError(index, span)
	}
	if index >= int64(len(items)) {
		return nil, IndexOutOfRangeError(index, span)
	}
	out := make([]Value, len(items))
	copy(out, items)
	out[index] = value
	return out, nil
}

// UpdateIndexRange builds a copy of items with the indexes the range produces
// replaced positionally by the elements of replace. Iteration stops when
// either the range or the replacement runs out.
func UpdateIndexRange(items []Value, r RangeValue, replace []Value, span fir.PackageSpan) ([]Value, *Error) {
	iter, err := MakeRange(len(items), r, span)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(items))
	copy(out, items)
	for i := 0; i < len(replace); i++ {
		idx, ok := iter.Next()
		if !ok {
			break
		}
		if idx < 0 {
			return nil, InvalidNegativeIntError(idx, span)
		}
		if idx >= int64(len(out)) {
			return nil, IndexOutOfRangeError(idx, span)
		}
		out[idx] = replace[i]
	}
	return out, nil
}

//-----------------------------------------------------------------------------
// In-place updates
//-----------------------------------------------------------------------------

// UpdateArrayInPlace overwrites one slot of a uniquely owned array, swapping
// the ownership claim from the old element to the new one. Indexing rules
// match the copy-update path so sharing never changes observable behavior.
func UpdateArrayInPlace(arr *ArrayValue, index int64, value Value, span fir.PackageSpan) *Error {
	if index < 0 {
		return InvalidNegativeIntError(index, span)
	}
	if index >= int64(len(arr.Items)) {
		return IndexOutOfRangeError(index, span)
	}
	Retain(value)
	Release(arr.Items[index])
	arr.Items[index] = value
	return nil
}

// UpdateRangeInPlace overwrites the slots a range produces in a uniquely
// owned array, zipped against the replacement's elements. Indexing rules
// match the copy-update path.
func UpdateRangeInPlace(arr *ArrayValue, r RangeValue, replace []Value, span fir.PackageSpan) *Error {
	iter, err := MakeRange(len(arr.Items), r, span)
	if err != nil {
		return err
	}
	for i := 0; i < len(replace); i++ {
		idx, ok := iter.Next()
		if !ok {
			break
		}
		if err := UpdateArrayInPlace(arr, idx, replace[i], span); err != nil {
			return err
		}
	}
	return nil
}

// AppendArrayInPlace extends a uniquely owned array with the items of other,
// claiming each appended item.
func AppendArrayInPlace(arr *ArrayValue, other *ArrayValue) {
	for _, it := range other.Items {
		Retain(it)
		arr.Items = append(arr.Items, it)
	}
}

// ConcatArrays builds a new array holding the items of both operands.
func ConcatArrays(a, b *ArrayValue) *ArrayValue {
	items := make([]Value, 0, len(a.Items)+len(b.Items))
	items = append(items, a.Items...)
	items = append(items, b.Items...)
	return NewArray(items)
}
