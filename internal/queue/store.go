package queue

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/claimtech/dialler/internal/lookup"
	"github.com/claimtech/dialler/pkg/logger"
	mongodb "github.com/claimtech/dialler/pkg/mongo"
)

const (
	queueCollection     = "call_queue"
	scoresCollection    = "user_call_scores"
	outcomesCollection  = "call_outcomes"
	callbacksCollection = "callbacks"
)

// MongoStore persists queues and scores on the operational database
type MongoStore struct {
	db *mongodb.Client
}

func NewMongoStore(db *mongodb.Client) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureIndexes creates the indexes the queue depends on. The partial
// unique index is what makes "one active entry per user per queue type"
// hold under concurrent writers.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	queueIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "queue_type", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "priority_score", Value: -1}}},
	}
	if _, err := s.db.Collection(queueCollection).Indexes().CreateMany(ctx, queueIndexes); err != nil {
		return err
	}

	scoreIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: 1}}},
	}
	if _, err := s.db.Collection(scoresCollection).Indexes().CreateMany(ctx, scoreIndexes); err != nil {
		return err
	}

	sessionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "call_sid", Value: 1}}},
		{Keys: bson.D{{Key: "caller_number", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	_, err := s.db.Collection("call_sessions").Indexes().CreateMany(ctx, sessionIndexes)
	return err
}

// EnsureScore creates the score record for a user if none exists.
// Existing scores are never reset by this path.
func (s *MongoStore) EnsureScore(ctx context.Context, userID int64) error {
	now := time.Now().UTC()
	_, err := s.db.NewQuery(scoresCollection).
		Eq("user_id", userID).
		SetOnInsert(ctx, bson.M{
			"user_id":          userID,
			"current_score":    50,
			"is_active":        true,
			"total_attempts":   0,
			"successful_calls": 0,
			"created_at":       now,
			"updated_at":       now,
		})
	return err
}

// Enqueue adds an active pending entry unless the user already has one
// of that queue type. The duplicate key error from the partial unique
// index is the "already queued" signal, not a failure; in that case the
// existing entry's id is returned so callers can still act on it.
func (s *MongoStore) Enqueue(ctx context.Context, userID int64, queueType, reason string, priority int) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	entry := bson.M{
		"user_id":        userID,
		"queue_type":     queueType,
		"status":         EntryPending,
		"active":         true,
		"priority_score": priority,
		"reason":         reason,
		"queued_at":      now,
		"created_at":     now,
		"updated_at":     now,
	}
	id, err := s.db.NewQuery(queueCollection).Insert(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		logger.Log.Debug("User already queued",
			zap.Int64("user_id", userID),
			zap.String("queue_type", queueType),
		)
		var existing Entry
		found, ferr := s.db.NewQuery(queueCollection).
			Eq("user_id", userID).
			Eq("queue_type", queueType).
			Eq("active", true).
			FindOneInto(ctx, &existing)
		if ferr != nil || !found {
			return primitive.NilObjectID, nil
		}
		return existing.ID, nil
	}
	if err != nil {
		return primitive.NilObjectID, err
	}
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid, nil
	}
	return primitive.NilObjectID, nil
}

// Assign moves a pending entry to an agent. Conditional on it still
// being pending so two agents cannot both take it.
func (s *MongoStore) Assign(ctx context.Context, entryID, agentID primitive.ObjectID, sessionID *primitive.ObjectID) (bool, error) {
	set := bson.M{
		"status":            EntryAssigned,
		"assigned_agent_id": agentID,
		"updated_at":        time.Now().UTC(),
	}
	if sessionID != nil {
		set["call_session_id"] = sessionID
	}
	return s.db.NewQuery(queueCollection).
		Eq("_id", entryID).
		Eq("status", EntryPending).
		ClaimOne(ctx, set)
}

// Complete closes an entry and clears the active flag, freeing the
// uniqueness slot for a future enqueue.
func (s *MongoStore) Complete(ctx context.Context, entryID primitive.ObjectID) error {
	return s.closeEntry(ctx, entryID, EntryCompleted)
}

func (s *MongoStore) Cancel(ctx context.Context, entryID primitive.ObjectID) error {
	return s.closeEntry(ctx, entryID, EntryCancelled)
}

func (s *MongoStore) closeEntry(ctx context.Context, entryID primitive.ObjectID, status string) error {
	_, err := s.db.NewQuery(queueCollection).
		Eq("_id", entryID).
		UpdateOne(ctx, bson.M{
			"status":     status,
			"active":     false,
			"updated_at": time.Now().UTC(),
		})
	return err
}

// MarkMissed records a missed inbound call. Known users get a pending
// return-call entry plus a score record; the unknown-caller sentinel
// gets a terminal missed row at zero priority and no score record, so
// unidentified numbers never pollute user_call_scores.
func (s *MongoStore) MarkMissed(ctx context.Context, userID int64, priority int) error {
	if userID == lookup.UnknownUserID {
		now := time.Now().UTC()
		_, err := s.db.NewQuery(queueCollection).Insert(ctx, bson.M{
			"user_id":        userID,
			"queue_type":     TypeInbound,
			"status":         EntryMissed,
			"active":         false,
			"priority_score": 0,
			"reason":         "missed call from unknown number",
			"queued_at":      now,
			"created_at":     now,
			"updated_at":     now,
		})
		return err
	}
	if err := s.EnsureScore(ctx, userID); err != nil {
		return err
	}
	_, err := s.Enqueue(ctx, userID, TypeInbound, "missed_inbound", priority)
	return err
}

// ListActive returns active entries of a queue type, highest priority
// first, for the dashboard.
func (s *MongoStore) ListActive(ctx context.Context, queueType string, page, pageSize int64) ([]Entry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 25
	}
	q := s.db.NewQuery(queueCollection).Eq("active", true)
	if queueType != "" {
		q.Eq("queue_type", queueType)
	}
	var entries []Entry
	err := q.Sort("priority_score", false).
		Sort("queued_at", true).
		Skip((page - 1) * pageSize).
		Limit(pageSize).
		FindInto(ctx, &entries)
	return entries, err
}

func (s *MongoStore) EntryByID(ctx context.Context, entryID primitive.ObjectID) (*Entry, error) {
	var entry Entry
	found, err := s.db.NewQuery(queueCollection).
		Eq("_id", entryID).
		FindOneInto(ctx, &entry)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}

// RecordOutcome stores a disposition and applies its score delta as a
// relative increment in one pass.
func (s *MongoStore) RecordOutcome(ctx context.Context, o *Outcome) error {
	o.ScoreDelta = DeltaForOutcome(o.Outcome)
	o.CreatedAt = time.Now().UTC()
	if _, err := s.db.NewQuery(outcomesCollection).Insert(ctx, o); err != nil {
		return err
	}
	if o.UserID == 0 {
		return nil
	}
	if err := s.EnsureScore(ctx, o.UserID); err != nil {
		return err
	}

	now := time.Now().UTC()
	inc := bson.M{"total_attempts": 1}
	if o.ScoreDelta != 0 {
		inc["current_score"] = o.ScoreDelta
	}
	if o.Outcome == OutcomeCompleted {
		inc["successful_calls"] = 1
	}
	_, err := s.db.NewQuery(scoresCollection).
		Eq("user_id", o.UserID).
		IncOne(ctx, inc, bson.M{
			"last_outcome": o.Outcome,
			"last_call_at": now,
			"updated_at":   now,
		})
	return err
}

func (s *MongoStore) ScoreForUser(ctx context.Context, userID int64) (*UserScore, error) {
	var score UserScore
	found, err := s.db.NewQuery(scoresCollection).
		Eq("user_id", userID).
		FindOneInto(ctx, &score)
	if err != nil || !found {
		return nil, err
	}
	return &score, nil
}

// ScheduleCallback records a requested return call and queues it
func (s *MongoStore) ScheduleCallback(ctx context.Context, cb *Callback) error {
	now := time.Now().UTC()
	cb.Status = EntryPending
	cb.CreatedAt = now
	cb.UpdatedAt = now
	if _, err := s.db.NewQuery(callbacksCollection).Insert(ctx, cb); err != nil {
		return err
	}
	if cb.UserID == 0 {
		return nil
	}
	if err := s.EnsureScore(ctx, cb.UserID); err != nil {
		return err
	}
	_, err := s.Enqueue(ctx, cb.UserID, TypeCallback, "callback_requested", 80)
	return err
}

// PendingCallbacks lists untaken callbacks due before the cutoff
func (s *MongoStore) PendingCallbacks(ctx context.Context, due time.Time, limit int64) ([]Callback, error) {
	var out []Callback
	err := s.db.NewQuery(callbacksCollection).
		Eq("status", EntryPending).
		Lte("scheduled_for", due).
		Sort("scheduled_for", true).
		Limit(limit).
		FindInto(ctx, &out)
	return out, err
}
