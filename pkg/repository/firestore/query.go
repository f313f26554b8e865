package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/types"
	"google.golang.org/api/iterator"
)

// deleteByConnection removes every document of a collection scoped to
// one connection. Used by the disconnect cascade.
func deleteByConnection(ctx context.Context, client *firestore.Client, collection string, connID types.ConnectionID) (int, error) {
	iter := client.Collection(collection).
		Where("connection_id", "==", string(connID)).
		Documents(ctx)
	defer iter.Stop()

	bw := client.BulkWriter(ctx)
	deleted := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, goerr.Wrap(err, "failed to iterate documents for deletion",
				goerr.V("collection", collection), goerr.V("connection_id", connID))
		}
		if _, err := bw.Delete(doc.Ref); err != nil {
			return deleted, goerr.Wrap(err, "failed to queue deletion",
				goerr.V("collection", collection))
		}
		deleted++
	}
	bw.End()

	return deleted, nil
}

// countByConnection runs a server-side count aggregation
func countByConnection(ctx context.Context, client *firestore.Client, collection string, connID types.ConnectionID) (int, error) {
	return countQuery(ctx, client.Collection(collection).Where("connection_id", "==", string(connID)))
}

func countQuery(ctx context.Context, q firestore.Query) (int, error) {
	result, err := q.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to run count aggregation")
	}

	value, ok := result["total"].(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("count aggregation returned no value")
	}

	return int(value.GetIntegerValue()), nil
}

// entityDocID builds the deterministic document ID that makes upsert a
// wholesale Set: one row per (connection_id, external_id).
func entityDocID(connID types.ConnectionID, externalID string) string {
	return string(connID) + ":" + externalID
}
