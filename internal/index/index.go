package index

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/refdb/internal/diskmap"
	"github.com/hupe1980/refdb/internal/store"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

// ErrUnsupported is returned by Lookup for operators an index cannot answer.
var ErrUnsupported = errors.New("index: unsupported operator")

// Index is the ordered index of one attribute within one partition.
type Index struct {
	attribute string
	sl        *diskmap.SkipList
}

// Open opens or creates the index of attribute of entityType in partition.
func Open(st *store.Store, entityType, attribute string, partition uint64) (*Index, error) {
	sl, err := diskmap.OpenSkipList(st, store.RootName("idx", entityType, attribute, strconv.FormatUint(partition, 10)))
	if err != nil {
		return nil, fmt.Errorf("index: open %s.%s: %w", entityType, attribute, err)
	}
	return &Index{attribute: attribute, sl: sl}, nil
}

// Attribute returns the indexed attribute.
func (ix *Index) Attribute() string { return ix.attribute }

// Len returns the number of entries.
func (ix *Index) Len() uint64 { return ix.sl.Len() }

// Add indexes record id under v.
func (ix *Index) Add(v record.Value, id uint64) error {
	_, _, err := ix.sl.Put(entryKey(v, id), nil)
	return err
}

// Remove drops the entry of record id under v. Missing entries are ignored.
func (ix *Index) Remove(v record.Value, id uint64) error {
	_, err := ix.sl.Delete(entryKey(v, id))
	if errors.Is(err, diskmap.ErrNotFound) {
		return nil
	}
	return err
}

// Update moves record id from old to v.
func (ix *Index) Update(old, v record.Value, id uint64) error {
	if bytes.Equal(Encode(nil, old), Encode(nil, v)) {
		return nil
	}
	if err := ix.Remove(old, id); err != nil {
		return err
	}
	return ix.Add(v, id)
}

// Lookup returns the candidate record ids for op and v. The result is a
// superset of the exact matches for numeric ranges.
func (ix *Index) Lookup(op query.Operator, v record.Value) (*roaring64.Bitmap, error) {
	out := roaring64.New()
	switch op {
	case query.OpEqual:
		return out, ix.equal(out, v)
	case query.OpIn:
		for _, e := range v.A {
			if err := ix.equal(out, e); err != nil {
				return nil, err
			}
		}
		return out, nil
	case query.OpGreaterThan, query.OpGreaterEqual:
		if v.IsNull() || v.Kind == record.KindArray {
			return out, nil
		}
		t := tag(v)
		err := ix.sl.Scan(Encode(nil, v), func(e diskmap.Entry) bool {
			if e.Key[0] != t {
				return false
			}
			_, id := split(e.Key)
			out.Add(id)
			return true
		})
		return out, err
	case query.OpLessThan, query.OpLessEqual:
		if v.IsNull() || v.Kind == record.KindArray {
			return out, nil
		}
		t := tag(v)
		bound := Encode(nil, v)
		err := ix.sl.Scan([]byte{t}, func(e diskmap.Entry) bool {
			enc, id := split(e.Key)
			if enc[0] != t || bytes.Compare(enc, bound) > 0 {
				return false
			}
			out.Add(id)
			return true
		})
		return out, err
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, op)
	}
}

func (ix *Index) equal(out *roaring64.Bitmap, v record.Value) error {
	enc := Encode(nil, v)
	return ix.sl.Scan(enc, func(e diskmap.Entry) bool {
		got, id := split(e.Key)
		if !bytes.Equal(got, enc) {
			return false
		}
		out.Add(id)
		return true
	})
}

// Clear removes every entry.
func (ix *Index) Clear() error {
	return ix.sl.Clear()
}
