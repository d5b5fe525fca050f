package scan

import (
	"context"
	"iter"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/refdb/entity"
	"github.com/hupe1980/refdb/internal/resource"
	"github.com/hupe1980/refdb/model"
	"github.com/hupe1980/refdb/query"
	"github.com/hupe1980/refdb/record"
)

// IndexReader answers indexable operators with candidate record ids.
type IndexReader interface {
	Lookup(op query.Operator, v record.Value) (*roaring64.Bitmap, error)
}

// Source is the storage the scanners read from.
type Source interface {
	// Descriptor returns the descriptor of entityType.
	Descriptor(entityType string) (*entity.Descriptor, bool)
	// References yields every reference of entityType in partition.
	References(ctx context.Context, entityType string, partition uint64) iter.Seq2[model.Reference, error]
	// Record loads the record behind ref. ok is false when it is gone.
	Record(ctx context.Context, entityType string, ref model.Reference) (rec record.Record, ok bool, err error)
	// Partitions returns the partition catalog of entityType.
	Partitions(entityType string) []model.PartitionEntry
	// PartitionID returns the partition id of the partition value of sample.
	PartitionID(entityType string, sample record.Record) (id uint64, ok bool, err error)
	// Index returns the index of attribute in partition, or nil.
	Index(entityType, attribute string, partition uint64) (IndexReader, error)
	// Relationships returns the relationship list of parent.
	Relationships(ctx context.Context, entityType, attribute string, parent model.Reference) ([]model.RelationshipReference, error)
	// Resolve maps a relationship reference of entityType to a reference.
	Resolve(ctx context.Context, entityType string, rr model.RelationshipReference) (model.Reference, bool, error)
}

// Env bundles what scanners need besides the query.
type Env struct {
	Source Source
	// Workers bounds the partition fan-out. Nil means unbounded.
	Workers *resource.Controller
	Logger  *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
