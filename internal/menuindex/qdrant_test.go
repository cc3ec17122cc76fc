package menuindex

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant records requests and serves canned query results.
type fakeQdrant struct {
	exists  bool
	created []*qdrant.CreateCollection
	deleted []string
	upserts []*qdrant.UpsertPoints
	count   uint64
	queries []*qdrant.QueryPoints
	results []*qdrant.ScoredPoint
	closed  bool
}

func (f *fakeQdrant) CollectionExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.created = append(f.created, req)
	f.exists = true
	return nil
}

func (f *fakeQdrant) DeleteCollection(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	f.exists = false
	f.count = 0
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	f.count += uint64(len(req.Points))
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Count(context.Context, *qdrant.CountPoints) (uint64, error) { return f.count, nil }

func (f *fakeQdrant) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries = append(f.queries, req)
	return f.results, nil
}

func (f *fakeQdrant) HealthCheck(context.Context) (*qdrant.HealthCheckReply, error) {
	return &qdrant.HealthCheckReply{}, nil
}

func (f *fakeQdrant) Close() error {
	f.closed = true
	return nil
}

func TestQdrant_AddUsesStablePointIDs(t *testing.T) {
	t.Parallel()
	f := &fakeQdrant{exists: true}
	q := newQdrant(f, QdrantConfig{Collection: "menu", VectorSize: 2}, &fakeEmbedder{})

	require.NoError(t, q.Add(context.Background(), "m1", []float32{1, 0}, "soup"))
	require.NoError(t, q.Add(context.Background(), "m1", []float32{0, 1}, "soup v2"))

	require.Len(t, f.upserts, 2)
	first := f.upserts[0].Points[0]
	second := f.upserts[1].Points[0]
	assert.Equal(t, first.GetId().GetUuid(), second.GetId().GetUuid())
	assert.Equal(t, pointID("m1"), first.GetId().GetUuid())
	assert.NotEqual(t, pointID("m1"), pointID("m2"))
	assert.Equal(t, "m1", first.GetPayload()[payloadID].GetStringValue())
	assert.Equal(t, "soup v2", second.GetPayload()[payloadText].GetStringValue())
	assert.True(t, f.upserts[0].GetWait())
}

func TestQdrant_ClearRecreatesCollection(t *testing.T) {
	t.Parallel()
	f := &fakeQdrant{exists: true, count: 3}
	q := newQdrant(f, QdrantConfig{Collection: "menu", VectorSize: 768}, &fakeEmbedder{})

	require.NoError(t, q.Clear(context.Background()))
	assert.Equal(t, []string{"menu"}, f.deleted)
	require.Len(t, f.created, 1)
	assert.Equal(t, "menu", f.created[0].GetCollectionName())
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQdrant_QueryMapsPayloadAndThreshold(t *testing.T) {
	t.Parallel()
	f := &fakeQdrant{
		exists: true,
		results: []*qdrant.ScoredPoint{{
			Id:      qdrant.NewIDUUID(pointID("m1")),
			Score:   0.91,
			Payload: qdrant.NewValueMap(map[string]any{payloadID: "m1", payloadText: "Food Name: Soup"}),
		}},
	}
	q := newQdrant(f, QdrantConfig{Collection: "menu", VectorSize: 2, MinScore: 0.48}, &fakeEmbedder{})

	got, err := q.Query(context.Background(), "soup?", 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "Food Name: Soup", got[0].Text)
	assert.InDelta(t, 0.91, got[0].Score, 1e-6)

	require.Len(t, f.queries, 1)
	assert.Equal(t, uint64(2), f.queries[0].GetLimit())
	assert.InDelta(t, 0.48, f.queries[0].GetScoreThreshold(), 1e-6)
}

func TestQdrant_QueryWithoutThreshold(t *testing.T) {
	t.Parallel()
	f := &fakeQdrant{exists: true}
	q := newQdrant(f, QdrantConfig{Collection: "menu", VectorSize: 2}, &fakeEmbedder{})

	_, err := q.Query(context.Background(), "soup?", 1)
	require.NoError(t, err)
	require.Len(t, f.queries, 1)
	assert.Nil(t, f.queries[0].ScoreThreshold)
}

func TestQdrant_EnsureCollectionCreatesWhenMissing(t *testing.T) {
	t.Parallel()
	f := &fakeQdrant{}
	q := newQdrant(f, QdrantConfig{Collection: "menu", VectorSize: 768}, &fakeEmbedder{})

	require.NoError(t, q.ensureCollection(context.Background()))
	require.Len(t, f.created, 1)
	assert.Equal(t, uint64(768), f.created[0].GetVectorsConfig().GetParams().GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, f.created[0].GetVectorsConfig().GetParams().GetDistance())

	require.NoError(t, q.ensureCollection(context.Background()))
	assert.Len(t, f.created, 1)
}

func TestQdrant_PingAndClose(t *testing.T) {
	t.Parallel()
	f := &fakeQdrant{exists: true}
	q := newQdrant(f, QdrantConfig{Collection: "menu", VectorSize: 2}, &fakeEmbedder{})
	assert.NoError(t, q.Ping(context.Background()))
	assert.NoError(t, q.Close())
	assert.True(t, f.closed)
}
