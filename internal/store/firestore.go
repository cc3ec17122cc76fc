package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore collection layout.
const (
	collectionFood       = "food"
	collectionEmbeddings = "embeddings"
	collectionQuery      = "query"
	collectionChats      = "chats"
	collectionSettings   = "settings"
	docSettingsModel     = "model"
)

// embeddingDoc is the Firestore shape of an EmbeddingRecord.
type embeddingDoc struct {
	Text    string             `firestore:"text"`
	Vectors firestore.Vector32 `firestore:"vectors"`
	Seq     int64              `firestore:"seq"`
}

// messageDoc is the Firestore shape of a chat message.
type messageDoc struct {
	Message   string    `firestore:"message"`
	Source    string    `firestore:"source"`
	Timestamp time.Time `firestore:"timestamp,serverTimestamp"`
}

// FirestoreStore is a Store backed by Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

var _ Store = (*FirestoreStore)(nil)

// OpenFirestore connects to the given project and database. An empty
// database selects the project's default database. When
// FIRESTORE_EMULATOR_HOST is set the client library targets the emulator.
func OpenFirestore(ctx context.Context, project, database string, opts ...option.ClientOption) (*FirestoreStore, error) {
	if project == "" {
		return nil, errors.New("store: firestore project is required")
	}
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, project, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

// NewFirestore wraps an existing client.
func NewFirestore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// MenuItem returns one menu document or ErrNotFound.
func (s *FirestoreStore) MenuItem(ctx context.Context, id string) (MenuItem, error) {
	snap, err := s.client.Collection(collectionFood).Doc(id).Get(ctx)
	if isNotFound(err) {
		return MenuItem{}, fmt.Errorf("store: menu item %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return MenuItem{}, fmt.Errorf("store: menu item %q: %w", id, err)
	}
	return MenuItem{ID: id, Data: snap.Data()}, nil
}

// MenuItems returns every menu document ordered by id.
func (s *FirestoreStore) MenuItems(ctx context.Context) ([]MenuItem, error) {
	iter := s.client.Collection(collectionFood).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var items []MenuItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: menu items: %w", err)
		}
		items = append(items, MenuItem{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return items, nil
}

// PutMenuItem creates or replaces a menu document.
func (s *FirestoreStore) PutMenuItem(ctx context.Context, item MenuItem) error {
	if _, err := s.client.Collection(collectionFood).Doc(item.ID).Set(ctx, item.Data); err != nil {
		return fmt.Errorf("store: put menu item %q: %w", item.ID, err)
	}
	return nil
}

// PutEmbedding creates or overwrites embeddings/{id}. The first write assigns
// a sequence number so Embeddings keeps first-insertion order.
func (s *FirestoreStore) PutEmbedding(ctx context.Context, rec EmbeddingRecord) error {
	ref := s.client.Collection(collectionEmbeddings).Doc(rec.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		seq := time.Now().UnixNano()
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var prev embeddingDoc
			if err := snap.DataTo(&prev); err == nil && prev.Seq != 0 {
				seq = prev.Seq
			}
		case !isNotFound(err):
			return err
		}
		return tx.Set(ref, embeddingDoc{
			Text:    rec.Text,
			Vectors: firestore.Vector32(rec.Vector),
			Seq:     seq,
		})
	})
	if err != nil {
		return fmt.Errorf("store: put embedding %q: %w", rec.ID, err)
	}
	return nil
}

// CountEmbeddings counts embedding documents with an aggregation query.
func (s *FirestoreStore) CountEmbeddings(ctx context.Context) (int, error) {
	res, err := s.client.Collection(collectionEmbeddings).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: count embeddings: %w", err)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("store: count embeddings: unexpected result type %T", res["all"])
	}
	return int(v.GetIntegerValue()), nil
}

// Embeddings returns every embedding document in first-insertion order.
func (s *FirestoreStore) Embeddings(ctx context.Context) ([]EmbeddingRecord, error) {
	snaps, err := s.client.Collection(collectionEmbeddings).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("store: embeddings: %w", err)
	}
	type seqRec struct {
		rec EmbeddingRecord
		seq int64
	}
	all := make([]seqRec, 0, len(snaps))
	for _, snap := range snaps {
		var doc embeddingDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("store: embedding %q decode: %w", snap.Ref.ID, err)
		}
		all = append(all, seqRec{
			rec: EmbeddingRecord{ID: snap.Ref.ID, Text: doc.Text, Vector: []float32(doc.Vectors)},
			seq: doc.Seq,
		})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	recs := make([]EmbeddingRecord, len(all))
	for i, r := range all {
		recs[i] = r.rec
	}
	return recs, nil
}

// Conversation returns query/{id}, or an empty conversation.
func (s *FirestoreStore) Conversation(ctx context.Context, id string) (Conversation, error) {
	snap, err := s.client.Collection(collectionQuery).Doc(id).Get(ctx)
	if isNotFound(err) {
		return Conversation{}, nil
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: conversation %q: %w", id, err)
	}
	var conv Conversation
	if err := snap.DataTo(&conv); err != nil {
		return Conversation{}, fmt.Errorf("store: conversation %q decode: %w", id, err)
	}
	return conv, nil
}

// SaveConversation merges history and context into query/{id}, leaving any
// other fields on the document untouched.
func (s *FirestoreStore) SaveConversation(ctx context.Context, id string, conv Conversation) error {
	history := conv.History
	if history == nil {
		history = []ChatMessage{}
	}
	data := map[string]any{
		"history": history,
		"context": conv.Context,
	}
	if _, err := s.client.Collection(collectionQuery).Doc(id).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("store: save conversation %q: %w", id, err)
	}
	return nil
}

// AddMessage adds a document under query/{conversationID}/chats stamped
// with the server time.
func (s *FirestoreStore) AddMessage(ctx context.Context, conversationID, message, source string) (string, error) {
	chats := s.client.Collection(collectionQuery).Doc(conversationID).Collection(collectionChats)
	ref, _, err := chats.Add(ctx, map[string]any{
		"message":   message,
		"source":    source,
		"timestamp": firestore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("store: add message: %w", err)
	}
	return ref.ID, nil
}

// Messages returns the chat documents of conversationID ordered by timestamp.
func (s *FirestoreStore) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	chats := s.client.Collection(collectionQuery).Doc(conversationID).Collection(collectionChats)
	snaps, err := chats.OrderBy("timestamp", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("store: messages: %w", err)
	}
	msgs := make([]Message, 0, len(snaps))
	for _, snap := range snaps {
		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("store: message %q decode: %w", snap.Ref.ID, err)
		}
		msgs = append(msgs, Message{
			ID:        snap.Ref.ID,
			Message:   doc.Message,
			Source:    doc.Source,
			Timestamp: doc.Timestamp,
		})
	}
	return msgs, nil
}

// Settings reads settings/model. A missing document or a non-numeric
// temperature yields an unset Temperature.
func (s *FirestoreStore) Settings(ctx context.Context) (Settings, error) {
	snap, err := s.client.Collection(collectionSettings).Doc(docSettingsModel).Get(ctx)
	if isNotFound(err) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("store: settings: %w", err)
	}
	var out Settings
	if t, ok := toFloat32(snap.Data()["temperature"]); ok {
		out.Temperature = &t
	}
	return out, nil
}

// PutSettings replaces settings/model.
func (s *FirestoreStore) PutSettings(ctx context.Context, st Settings) error {
	data := map[string]any{}
	if st.Temperature != nil {
		data["temperature"] = float64(*st.Temperature)
	}
	if _, err := s.client.Collection(collectionSettings).Doc(docSettingsModel).Set(ctx, data); err != nil {
		return fmt.Errorf("store: put settings: %w", err)
	}
	return nil
}

// Ping reads the settings document to confirm the database is reachable.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(collectionSettings).Doc(docSettingsModel).Get(ctx)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
