package firestore

import (
	"context"
	"encoding/json"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"google.golang.org/api/iterator"
)

type issueDocument struct {
	ConnectionID   string     `firestore:"connection_id"`
	ExternalID     string     `firestore:"external_id"`
	Key            string     `firestore:"key"`
	ProjectID      string     `firestore:"project_id"`
	Summary        string     `firestore:"summary"`
	Status         string     `firestore:"status"`
	StatusCategory string     `firestore:"status_category"`
	IssueType      string     `firestore:"issue_type"`
	Priority       string     `firestore:"priority"`
	Assignee       string     `firestore:"assignee"`
	AssigneeID     string     `firestore:"assignee_id"`
	Reporter       string     `firestore:"reporter"`
	Created        *time.Time `firestore:"created"`
	Updated        *time.Time `firestore:"updated"`
	Resolved       *time.Time `firestore:"resolved"`
	Raw            []byte     `firestore:"raw"`
	FetchedAt      time.Time  `firestore:"fetched_at"`
}

type issueRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newIssueRepository(client *firestore.Client) *issueRepository {
	return &issueRepository{client: client}
}

func (r *issueRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_issues"
	}
	return "issues"
}

func issueToDocument(i *model.Issue) *issueDocument {
	return &issueDocument{
		ConnectionID:   string(i.ConnectionID),
		ExternalID:     i.ExternalID,
		Key:            i.Key,
		ProjectID:      i.ProjectID,
		Summary:        i.Summary,
		Status:         i.Status,
		StatusCategory: i.StatusCategory,
		IssueType:      i.IssueType,
		Priority:       i.Priority,
		Assignee:       i.Assignee,
		AssigneeID:     i.AssigneeID,
		Reporter:       i.Reporter,
		Created:        i.Created,
		Updated:        i.Updated,
		Resolved:       i.Resolved,
		Raw:            i.Raw,
		FetchedAt:      i.FetchedAt,
	}
}

func issueToModel(doc *issueDocument) *model.Issue {
	return &model.Issue{
		ConnectionID:   types.ConnectionID(doc.ConnectionID),
		ExternalID:     doc.ExternalID,
		Key:            doc.Key,
		ProjectID:      doc.ProjectID,
		Summary:        doc.Summary,
		Status:         doc.Status,
		StatusCategory: doc.StatusCategory,
		IssueType:      doc.IssueType,
		Priority:       doc.Priority,
		Assignee:       doc.Assignee,
		AssigneeID:     doc.AssigneeID,
		Reporter:       doc.Reporter,
		Created:        doc.Created,
		Updated:        doc.Updated,
		Resolved:       doc.Resolved,
		Raw:            json.RawMessage(doc.Raw),
		FetchedAt:      doc.FetchedAt,
	}
}

func (r *issueRepository) Upsert(ctx context.Context, issue *model.Issue) error {
	if err := issue.Validate(); err != nil {
		return goerr.Wrap(err, "invalid issue")
	}
	if issue.FetchedAt.IsZero() {
		issue.FetchedAt = time.Now().UTC()
	}

	docRef := r.client.Collection(r.collection()).Doc(entityDocID(issue.ConnectionID, issue.ExternalID))
	if _, err := docRef.Set(ctx, issueToDocument(issue)); err != nil {
		return goerr.Wrap(err, "failed to upsert issue",
			goerr.V("connection_id", issue.ConnectionID), goerr.V("key", issue.Key))
	}

	return nil
}

func (r *issueRepository) listQuery(ctx context.Context, q firestore.Query) ([]*model.Issue, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	var issues []*model.Issue
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate issues")
		}

		var data issueDocument
		if err := doc.DataTo(&data); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal issue")
		}
		issues = append(issues, issueToModel(&data))
	}

	return issues, nil
}

func (r *issueRepository) ListByConnection(ctx context.Context, connID types.ConnectionID) ([]*model.Issue, error) {
	return r.listQuery(ctx, r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)))
}

func (r *issueRepository) ListUpdatedSince(ctx context.Context, connID types.ConnectionID, since time.Time) ([]*model.Issue, error) {
	return r.listQuery(ctx, r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		Where("updated", ">=", since))
}

func (r *issueRepository) ListResolvedSince(ctx context.Context, connID types.ConnectionID, since time.Time) ([]*model.Issue, error) {
	return r.listQuery(ctx, r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		Where("resolved", ">=", since))
}

func (r *issueRepository) ListOpen(ctx context.Context, connID types.ConnectionID) ([]*model.Issue, error) {
	return r.listQuery(ctx, r.client.Collection(r.collection()).
		Where("connection_id", "==", string(connID)).
		Where("resolved", "==", nil))
}

func (r *issueRepository) CountByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	return countByConnection(ctx, r.client, r.collection(), connID)
}

func (r *issueRepository) DeleteByConnection(ctx context.Context, connID types.ConnectionID) (int, error) {
	return deleteByConnection(ctx, r.client, r.collection(), connID)
}
