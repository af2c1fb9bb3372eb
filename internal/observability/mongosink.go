package observability

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// RequestRecord is one request's observability document, written
// asynchronously so a slow or unavailable Mongo never adds latency to the
// proxied request itself.
type RequestRecord struct {
	RequestID    string    `bson:"requestId"`
	Timestamp    time.Time `bson:"timestamp"`
	Backend      string    `bson:"backend"`
	UserID       string    `bson:"userId,omitempty"`
	Category     string    `bson:"category,omitempty"`
	StatusCode   int       `bson:"statusCode"`
	LatencyMs    int64     `bson:"latencyMs"`
	InputTokens  int       `bson:"inputTokens"`
	OutputTokens int       `bson:"outputTokens"`
	Query        string    `bson:"query,omitempty"`
	Response     string    `bson:"response,omitempty"`
	Error        string    `bson:"error,omitempty"`
}

// trimEvery bounds how often the count-based cap is enforced, since it
// costs a count query and a range delete rather than a plain insert.
const trimEvery = 50

// MongoSink persists request records for longer-term analytics than the
// in-memory ring buffer holds, with a TTL index doing time-based retention
// and an optional count-based cap enforced alongside it.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection

	captureQuery     bool
	captureResponse  bool
	maxDocumentCount int

	writes      chan RequestRecord
	insertCount int
}

// NewMongoSink connects to uri and ensures the TTL and query indexes exist.
// retentionDays <= 0 disables the TTL expiry (documents live forever).
// maxDocumentCount <= 0 disables the count-based cap.
func NewMongoSink(ctx context.Context, uri, database, collection string, retentionDays, maxDocumentCount int, captureQuery, captureResponse bool) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	coll := client.Database(database).Collection(collection)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: 1}, {Key: "backend", Value: 1}, {Key: "userId", Value: 1}}},
	}
	if retentionDays > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retentionDays * 86400)),
		})
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, err
	}

	sink := &MongoSink{
		client:           client,
		collection:       coll,
		captureQuery:     captureQuery,
		captureResponse:  captureResponse,
		maxDocumentCount: maxDocumentCount,
		writes:           make(chan RequestRecord, 256),
	}
	go sink.run()
	return sink, nil
}

// Record enqueues a record for async persistence, redacting the raw
// query/response unless the sink is explicitly configured to capture them.
func (s *MongoSink) Record(r RequestRecord) {
	if !s.captureQuery {
		r.Query = ""
	}
	if !s.captureResponse {
		r.Response = ""
	}
	select {
	case s.writes <- r:
	default:
		slog.Warn("mongo sink write queue full, dropping record", "request_id", r.RequestID)
	}
}

func (s *MongoSink) run() {
	for r := range s.writes {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := s.collection.InsertOne(ctx, r); err != nil {
			slog.Warn("mongo sink insert failed", "error", err)
		}
		cancel()

		if s.maxDocumentCount <= 0 {
			continue
		}
		s.insertCount++
		if s.insertCount%trimEvery == 0 {
			s.trimToMaxDocumentCount()
		}
	}
}

// trimToMaxDocumentCount deletes the oldest documents once the collection
// exceeds maxDocumentCount, finding the cutoff timestamp of the Nth most
// recent document and dropping everything older.
func (s *MongoSink) trimToMaxDocumentCount() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := s.collection.EstimatedDocumentCount(ctx)
	if err != nil || count <= int64(s.maxDocumentCount) {
		return
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetSkip(int64(s.maxDocumentCount))
	var boundary RequestRecord
	if err := s.collection.FindOne(ctx, bson.D{}, opts).Decode(&boundary); err != nil {
		return
	}

	res, err := s.collection.DeleteMany(ctx, bson.D{{Key: "timestamp", Value: bson.D{{Key: "$lte", Value: boundary.Timestamp}}}})
	if err != nil {
		slog.Warn("mongo sink trim failed", "error", err)
		return
	}
	if res.DeletedCount > 0 {
		slog.Debug("mongo sink trimmed to document cap", "deleted", res.DeletedCount, "cap", s.maxDocumentCount)
	}
}

// Close stops accepting new records and disconnects from Mongo.
func (s *MongoSink) Close(ctx context.Context) error {
	close(s.writes)
	return s.client.Disconnect(ctx)
}
