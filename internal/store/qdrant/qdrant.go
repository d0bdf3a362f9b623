// Package qdrant implements an ANN-only Vector Store backend, demonstrating
// the "plugin-style storage backend" design note: a second tagged variant of
// the Vector Store abstraction with no lexical index.
package qdrant

import (
	"context"
	"fmt"

	apperrors "github.com/layeredmemory/engine/internal/errors"
	"github.com/layeredmemory/engine/internal/filter"
	"github.com/layeredmemory/engine/internal/store"
	qdrantpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store wraps a qdrant gRPC client. Only ANN is supported; Lex and Scan
// (which need relational filtering beyond a payload match) return
// *store.ErrUnsupported, and Tx is a no-op wrapper since qdrant has no
// cross-collection transaction primitive the episodic pipeline could use.
type Store struct {
	client qdrantpb.PointsClient
}

var _ store.Store = (*Store)(nil)

// Dial connects to a qdrant instance at addr.
func Dial(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, apperrors.NewTransient("qdrant dial failed").WithCause(err)
	}
	return &Store{client: qdrantpb.NewPointsClient(conn)}, nil
}

func (s *Store) Put(ctx context.Context, table store.Table, row store.Row) error {
	vec := make([]float32, len(row.Embedding))
	copy(vec, row.Embedding)
	payload := map[string]*qdrantpb.Value{}
	for k, v := range row.Metadata {
		payload[k] = qdrantpb.NewValue(fmt.Sprintf("%v", v))
	}
	_, err := s.client.Upsert(ctx, &qdrantpb.UpsertPoints{
		CollectionName: string(table),
		Points: []*qdrantpb.PointStruct{{
			Id:      qdrantpb.NewIDUUID(row.ID),
			Vectors: qdrantpb.NewVectors(vec...),
			Payload: payload,
		}},
	})
	if err != nil {
		return apperrors.NewTransient("qdrant upsert failed").WithCause(err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table store.Table, id string, patch map[string]any) error {
	payload := map[string]*qdrantpb.Value{}
	for k, v := range patch {
		payload[k] = qdrantpb.NewValue(fmt.Sprintf("%v", v))
	}
	_, err := s.client.SetPayload(ctx, &qdrantpb.SetPayloadPoints{
		CollectionName: string(table),
		Payload:        payload,
		PointsSelector: qdrantpb.NewPointsSelectorIDs([]*qdrantpb.PointId{qdrantpb.NewIDUUID(id)}),
	})
	if err != nil {
		return apperrors.NewTransient("qdrant set payload failed").WithCause(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table store.Table, id string) error {
	_, err := s.client.Delete(ctx, &qdrantpb.DeletePoints{
		CollectionName: string(table),
		Points:         qdrantpb.NewPointsSelectorIDs([]*qdrantpb.PointId{qdrantpb.NewIDUUID(id)}),
	})
	if err != nil {
		return apperrors.NewTransient("qdrant delete failed").WithCause(err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table store.Table, id string) (store.Row, bool, error) {
	resp, err := s.client.Get(ctx, &qdrantpb.GetPoints{
		CollectionName: string(table),
		Ids:            []*qdrantpb.PointId{qdrantpb.NewIDUUID(id)},
		WithVectors:    qdrantpb.NewWithVectorsEnable(true),
		WithPayload:    qdrantpb.NewWithPayloadEnable(true),
	})
	if err != nil {
		return store.Row{}, false, apperrors.NewTransient("qdrant get failed").WithCause(err)
	}
	if len(resp.GetResult()) == 0 {
		return store.Row{}, false, nil
	}
	return pointToRow(resp.GetResult()[0]), true, nil
}

func (s *Store) ANN(
	ctx context.Context, table store.Table, embedding []float32, k int, predicate *filter.Compiled,
) ([]store.Hit, error) {
	resp, err := s.client.Search(ctx, &qdrantpb.SearchPoints{
		CollectionName: string(table),
		Vector:         embedding,
		Limit:          uint64(k),
		WithVectors:    qdrantpb.NewWithVectorsEnable(true),
		WithPayload:    qdrantpb.NewWithPayloadEnable(true),
	})
	if err != nil {
		return nil, apperrors.NewTransient("qdrant search failed").WithCause(err)
	}
	hits := make([]store.Hit, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		hits = append(hits, store.Hit{Row: scoredToRow(scored), Score: float64(scored.GetScore())})
	}
	return hits, nil
}

func (s *Store) Lex(
	ctx context.Context, table store.Table, tokens []string, k int, predicate *filter.Compiled,
) ([]store.Hit, error) {
	return nil, &store.ErrUnsupported{Op: "Lex"}
}

func (s *Store) Scan(
	ctx context.Context, table store.Table, predicate *filter.Compiled, limit int, order store.Order,
) ([]store.Row, error) {
	return nil, &store.ErrUnsupported{Op: "Scan"}
}

func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return fn(ctx, s)
}

func (s *Store) Overloaded(ctx context.Context) bool { return false }

func pointToRow(p *qdrantpb.RetrievedPoint) store.Row {
	return store.Row{
		ID:        p.GetId().GetUuid(),
		Fields:    payloadToFields(p.GetPayload()),
		Embedding: p.GetVectors().GetVector().GetData(),
	}
}

func scoredToRow(p *qdrantpb.ScoredPoint) store.Row {
	return store.Row{
		ID:        p.GetId().GetUuid(),
		Fields:    payloadToFields(p.GetPayload()),
		Embedding: p.GetVectors().GetVector().GetData(),
	}
}

func payloadToFields(payload map[string]*qdrantpb.Value) map[string]any {
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		fields[k] = v.GetStringValue()
	}
	return fields
}
