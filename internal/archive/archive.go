// Package archive reads the conversation checkpoints a chat agent stores in
// MongoDB. It never writes to the collection.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/piotrmarcinkowski/ai-chatbot/internal/config"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Field names written by the checkpointer next to the thread and payload fields.
const (
	fieldNamespace = "checkpoint_ns"
	fieldID        = "checkpoint_id"
	fieldParentID  = "parent_checkpoint_id"
	fieldType      = "type"
	fieldMetadata  = "metadata"
)

// ThreadCheckpoint is one row of the first-checkpoint aggregation.
type ThreadCheckpoint struct {
	ThreadID     any     `json:"_id"`
	FirstMessage Payload `json:"firstMessage"`
}

// Checkpoint is a single stored checkpoint document.
type Checkpoint struct {
	ThreadID  string  `json:"threadId"`
	Namespace string  `json:"checkpointNs"`
	ID        string  `json:"checkpointId"`
	ParentID  string  `json:"parentCheckpointId,omitempty"`
	Type      string  `json:"type,omitempty"`
	Payload   Payload `json:"checkpoint"`
	Metadata  any     `json:"metadata,omitempty"`
}

// Archive queries one checkpoint collection.
type Archive struct {
	client          *mongo.Client
	coll            *mongo.Collection
	threadField     string
	checkpointField string
	limit           int
}

// Open connects to MongoDB and binds the configured database and collection.
func Open(ctx context.Context, cfg *config.Config) (*Archive, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Debug("Connected to MongoDB", "database", cfg.Database, "collection", cfg.Collection, "writes", cfg.WritesCollection())

	a := New(client.Database(cfg.Database).Collection(cfg.Collection), cfg)
	a.client = client
	return a, nil
}

// New binds an existing collection handle. Close is a no-op for archives
// created this way.
func New(coll *mongo.Collection, cfg *config.Config) *Archive {
	return &Archive{
		coll:            coll,
		threadField:     cfg.ThreadField,
		checkpointField: cfg.CheckpointField,
		limit:           cfg.Limit,
	}
}

// Close disconnects the client opened by Open.
func (a *Archive) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

type firstCheckpointDoc struct {
	ID           bson.RawValue `bson:"_id"`
	FirstMessage bson.RawValue `bson:"firstMessage"`
}

// FirstCheckpoints lists every thread with the first checkpoint payload the
// server returned for it. The configured limit caps the returned slice; the
// pipeline itself is sent unchanged.
func (a *Archive) FirstCheckpoints(ctx context.Context) ([]ThreadCheckpoint, error) {
	cursor, err := a.coll.Aggregate(ctx, FirstCheckpointPipeline(a.threadField, a.checkpointField))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate checkpoints: %w", err)
	}
	var docs []firstCheckpointDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
	}

	out := make([]ThreadCheckpoint, 0, len(docs))
	for _, doc := range docs {
		tc := ThreadCheckpoint{FirstMessage: DecodePayload(doc.FirstMessage)}
		if !doc.ID.IsZero() && doc.ID.Type != bson.TypeNull {
			if tc.ThreadID, err = plainValue(doc.ID); err != nil {
				return nil, err
			}
		}
		out = append(out, tc)
	}
	return capped("threads", out, a.limit), nil
}

// ThreadIDs returns the distinct thread identifiers, sorted. Documents
// without a thread field are reported as an empty identifier.
func (a *Archive) ThreadIDs(ctx context.Context) ([]string, error) {
	keys, err := a.threadKeys(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(keys))
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id := keyString(key)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// threadKeys returns the raw group keys, so non-string and null thread ids
// can be matched again exactly.
func (a *Archive) threadKeys(ctx context.Context) ([]bson.RawValue, error) {
	cursor, err := a.coll.Aggregate(ctx, ThreadIDsPipeline(a.threadField))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate thread ids: %w", err)
	}
	var docs []struct {
		ID bson.RawValue `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode thread ids: %w", err)
	}
	keys := make([]bson.RawValue, 0, len(docs))
	for _, doc := range docs {
		key := doc.ID
		if key.IsZero() {
			key = bson.RawValue{Type: bson.TypeNull}
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Checkpoints returns stored checkpoint documents in natural order, limited
// by the configured limit. An empty threadID matches every thread.
func (a *Archive) Checkpoints(ctx context.Context, threadID string) ([]Checkpoint, error) {
	filter := bson.M{}
	if threadID != "" {
		filter[a.threadField] = threadID
	}
	opts := options.Find()
	if a.limit > 0 {
		opts.SetLimit(int64(a.limit))
	}
	cursor, err := a.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find checkpoints: %w", err)
	}
	var docs []bson.Raw
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
	}

	out := make([]Checkpoint, 0, len(docs))
	for _, doc := range docs {
		out = append(out, a.toCheckpoint(doc))
	}
	return out, nil
}

// LatestCheckpoint returns the newest checkpoint of threadID in the root
// namespace, ordered by checkpoint id.
func (a *Archive) LatestCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	return a.latestCheckpoint(ctx, threadID, threadID)
}

// latestCheckpoint matches the thread field against key as-is; a BSON null
// key also matches documents that lack the field.
func (a *Archive) latestCheckpoint(ctx context.Context, key any, label string) (*Checkpoint, error) {
	filter := bson.M{
		a.threadField:  key,
		fieldNamespace: bson.M{"$in": bson.A{"", nil}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: fieldID, Value: -1}})

	var doc bson.Raw
	err := a.coll.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &NotFoundError{Resource: "checkpoint", ID: label}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest checkpoint: %w", err)
	}
	cp := a.toCheckpoint(doc)
	return &cp, nil
}

func (a *Archive) toCheckpoint(doc bson.Raw) Checkpoint {
	cp := Checkpoint{
		ThreadID:  keyString(lookup(doc, a.threadField)),
		Namespace: keyString(doc.Lookup(fieldNamespace)),
		ID:        keyString(doc.Lookup(fieldID)),
		ParentID:  keyString(doc.Lookup(fieldParentID)),
		Type:      keyString(doc.Lookup(fieldType)),
	}
	cp.Payload = DecodeCheckpoint(lookup(doc, a.checkpointField), cp.Type)
	if md := doc.Lookup(fieldMetadata); !md.IsZero() {
		if v, err := plainValue(md); err == nil {
			cp.Metadata = v
		} else {
			log.Warn("Skipping undecodable checkpoint metadata", "checkpointId", cp.ID, "err", err)
		}
	}
	return cp
}

// lookup resolves a dotted field path; missing fields yield a zero RawValue.
func lookup(doc bson.Raw, path string) bson.RawValue {
	return doc.Lookup(strings.Split(path, ".")...)
}

// capped trims items to limit and warns about the rows it dropped.
func capped[T any](what string, items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		log.Warn("Limit dropped rows", "rows", what, "limit", limit, "total", len(items))
		return items[:limit]
	}
	return items
}
