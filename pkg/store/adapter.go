package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/job"
)

// jobStoreAdapter lets any Store back a job.Job's Run method, translating
// between job.OutputDoc and this package's Document.
type jobStoreAdapter struct {
	s Store
}

// NewJobStoreAdapter wraps s so it satisfies job.Store.
func NewJobStoreAdapter(s Store) job.Store {
	return jobStoreAdapter{s: s}
}

func (a jobStoreAdapter) GetOutput(ctx context.Context, id uuid.UUID, index int) (any, bool, error) {
	return GetOutput(ctx, a.s, id, index, nil)
}

func (a jobStoreAdapter) PutOutput(ctx context.Context, doc job.OutputDoc) error {
	return PutOutput(ctx, a.s, Document{
		UUID:       doc.UUID,
		Index:      doc.Index,
		Output:     doc.Output,
		Metadata:   doc.Metadata,
		Hosts:      doc.Hosts,
		Name:       doc.Name,
		StoredData: doc.StoredData,
	})
}
