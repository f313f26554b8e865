package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type syncJobDocument struct {
	ID           string     `firestore:"id"`
	ConnectionID string     `firestore:"connection_id"`
	Status       string     `firestore:"status"`
	StartedAt    *time.Time `firestore:"started_at"`
	FinishedAt   *time.Time `firestore:"finished_at"`
	Statuses     int        `firestore:"statuses"`
	Projects     int        `firestore:"projects"`
	Users        int        `firestore:"users"`
	Issues       int        `firestore:"issues"`
	APICalls     int        `firestore:"api_calls"`
	Error        string     `firestore:"error"`
	CreatedAt    time.Time  `firestore:"created_at"`
}

// syncSlotDocument marks the connection's active sync. Its existence
// is the cross-process mutual exclusion; it lives and dies inside the
// same transaction as the job transition.
type syncSlotDocument struct {
	JobID     string    `firestore:"job_id"`
	ClaimedAt time.Time `firestore:"claimed_at"`
}

type syncJobRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newSyncJobRepository(client *firestore.Client) *syncJobRepository {
	return &syncJobRepository{client: client}
}

func (r *syncJobRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_sync_jobs"
	}
	return "sync_jobs"
}

func (r *syncJobRepository) slotCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_sync_slots"
	}
	return "sync_slots"
}

func syncJobToDocument(job *model.SyncJob) *syncJobDocument {
	return &syncJobDocument{
		ID:           string(job.ID),
		ConnectionID: string(job.ConnectionID),
		Status:       string(job.Status),
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		Statuses:     job.Counts.Statuses,
		Projects:     job.Counts.Projects,
		Users:        job.Counts.Users,
		Issues:       job.Counts.Issues,
		APICalls:     job.APICalls,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
	}
}

func syncJobToModel(doc *syncJobDocument) *model.SyncJob {
	return &model.SyncJob{
		ID:           types.SyncJobID(doc.ID),
		ConnectionID: types.ConnectionID(doc.ConnectionID),
		Status:       types.SyncStatus(doc.Status),
		StartedAt:    doc.StartedAt,
		FinishedAt:   doc.FinishedAt,
		Counts: model.SyncCounts{
			Statuses: doc.Statuses,
			Projects: doc.Projects,
			Users:    doc.Users,
			Issues:   doc.Issues,
		},
		APICalls:  doc.APICalls,
		Error:     doc.Error,
		CreatedAt: doc.CreatedAt,
	}
}

func (r *syncJobRepository) Start(ctx context.Context, job *model.SyncJob) error {
	if err := job.Validate(); err != nil {
		return goerr.Wrap(err, "invalid sync job")
	}

	slotRef := r.client.Collection(r.slotCollection()).Doc(string(job.ConnectionID))
	jobRef := r.client.Collection(r.collection()).Doc(string(job.ID))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(slotRef)
		if err == nil {
			return goerr.Wrap(ErrSyncActive, "connection sync slot is held",
				goerr.V("connection_id", job.ConnectionID))
		}
		if status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to read sync slot")
		}

		if err := tx.Set(slotRef, &syncSlotDocument{
			JobID:     string(job.ID),
			ClaimedAt: time.Now().UTC(),
		}); err != nil {
			return goerr.Wrap(err, "failed to claim sync slot")
		}
		if err := tx.Set(jobRef, syncJobToDocument(job)); err != nil {
			return goerr.Wrap(err, "failed to store sync job")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (r *syncJobRepository) Update(ctx context.Context, job *model.SyncJob) error {
	if job.Status.IsTerminal() {
		return goerr.New("terminal transitions must go through Finish", goerr.V("id", job.ID))
	}

	jobRef := r.client.Collection(r.collection()).Doc(string(job.ID))
	if _, err := jobRef.Set(ctx, syncJobToDocument(job)); err != nil {
		return goerr.Wrap(err, "failed to update sync job", goerr.V("id", job.ID))
	}

	return nil
}

func (r *syncJobRepository) Finish(ctx context.Context, job *model.SyncJob) error {
	if !job.Status.IsTerminal() {
		return goerr.New("Finish requires a terminal status", goerr.V("status", job.Status))
	}

	slotRef := r.client.Collection(r.slotCollection()).Doc(string(job.ConnectionID))
	jobRef := r.client.Collection(r.collection()).Doc(string(job.ID))

	// Job state and slot release commit in one transaction so a
	// failed release can never leave the slot claimed against a
	// terminal job. The caller sees the error and can retry Finish.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(jobRef, syncJobToDocument(job)); err != nil {
			return goerr.Wrap(err, "failed to store terminal sync job", goerr.V("id", job.ID))
		}
		if err := tx.Delete(slotRef); err != nil {
			return goerr.Wrap(err, "failed to release sync slot", goerr.V("id", job.ID))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return nil
}

func (r *syncJobRepository) Get(ctx context.Context, id types.SyncJobID) (*model.SyncJob, error) {
	doc, err := r.client.Collection(r.collection()).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "sync job not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get sync job", goerr.V("id", id))
	}

	var data syncJobDocument
	if err := doc.DataTo(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal sync job")
	}

	return syncJobToModel(&data), nil
}

func (r *syncJobRepository) Latest(ctx context.Context, connID types.ConnectionID) (*model.SyncJob, error) {
	iter := r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		OrderBy("created_at", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, goerr.Wrap(ErrNotFound, "no sync jobs for connection", goerr.V("connection_id", connID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query latest sync job", goerr.V("connection_id", connID))
	}

	var data syncJobDocument
	if err := doc.DataTo(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal sync job")
	}

	return syncJobToModel(&data), nil
}

func (r *syncJobRepository) ListByConnection(ctx context.Context, connID types.ConnectionID, limit int) ([]*model.SyncJob, error) {
	q := r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var jobs []*model.SyncJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list sync jobs", goerr.V("connection_id", connID))
		}

		var data syncJobDocument
		if err := doc.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal sync job")
		}
		jobs = append(jobs, syncJobToModel(&data))
	}

	return jobs, nil
}

func (r *syncJobRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	deleted, err := deleteByConnection(ctx, r.client, r.collection(), connID)
	if err != nil {
		return 0, err
	}

	// Drop any leftover slot as well; a dangling slot would wedge the
	// connection if it were ever recreated with the same ID.
	if _, err := r.client.Collection(r.slotCollection()).Doc(string(connID)).Delete(ctx); err != nil {
		if status.Code(err) != codes.NotFound {
			return deleted, goerr.Wrap(err, "failed to delete sync slot", goerr.V("connection_id", connID))
		}
	}

	return deleted, nil
}
