// Package index holds the in-memory cache of ingested image records.
package index

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"imagesweep/internal/models"
)

// Index maps a source identifier to its latest ImageRecord.
// It is safe for concurrent use by multiple writers and readers.
type Index struct {
	records *xsync.MapOf[string, models.ImageRecord]
}

// New creates an empty Index
func New() *Index {
	return &Index{records: xsync.NewMapOf[string, models.ImageRecord]()}
}

// Put stores rec, replacing any earlier record with the same SourceID
func (x *Index) Put(rec models.ImageRecord) {
	x.records.Store(rec.SourceID, rec)
}

// Get returns the record stored for sourceID
func (x *Index) Get(sourceID string) (models.ImageRecord, bool) {
	return x.records.Load(sourceID)
}

// Delete removes sourceID and reports whether it was present
func (x *Index) Delete(sourceID string) bool {
	_, ok := x.records.LoadAndDelete(sourceID)
	return ok
}

// Len returns the number of records
func (x *Index) Len() int {
	return x.records.Size()
}

// Snapshot returns a copy of all records ordered by SourceID.
// Later changes to the index do not affect the returned slice.
func (x *Index) Snapshot() []models.ImageRecord {
	out := make([]models.ImageRecord, 0, x.records.Size())
	x.records.Range(func(_ string, rec models.ImageRecord) bool {
		out = append(out, rec)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].SourceID < out[j].SourceID
	})
	return out
}
