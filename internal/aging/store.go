package aging

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/claimtech/dialler/internal/queue"
	mongodb "github.com/claimtech/dialler/pkg/mongo"
)

const (
	scoresCollection = "user_call_scores"
	queueCollection  = "call_queue"
)

// MongoStore implements Store on the operational database
type MongoStore struct {
	db *mongodb.Client
}

func NewMongoStore(db *mongodb.Client) *MongoStore {
	return &MongoStore{db: db}
}

type scoreRow struct {
	UserID         int64      `bson:"user_id"`
	CurrentScore   int        `bson:"current_score"`
	CreatedAt      time.Time  `bson:"created_at"`
	LastQueueCheck *time.Time `bson:"last_queue_check"`
}

// SelectBatch picks active, unfrozen scores whose last check (or
// creation, for never-checked rows) is at or before cutoff.
func (s *MongoStore) SelectBatch(ctx context.Context, cutoff time.Time, limit int64) ([]Candidate, error) {
	var rows []scoreRow
	err := s.db.NewQuery(scoresCollection).
		Eq("is_active", true).
		Lt("current_score", queue.ScoreFreezeThreshold).
		Lte("created_at", cutoff).
		Or(
			bson.M{"last_queue_check": nil},
			bson.M{"last_queue_check": bson.M{"$lte": cutoff}},
		).
		Sort("last_queue_check", true).
		Sort("created_at", true).
		Limit(limit).
		FindInto(ctx, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Candidate{
			UserID:    r.UserID,
			Score:     r.CurrentScore,
			CreatedAt: r.CreatedAt,
			LastCheck: r.LastQueueCheck,
		}
	}
	return out, nil
}

// AgeBatch bumps the batch's scores and their active pending queue
// entries inside one transaction, so a crash cannot leave scores aged
// but queues stale.
func (s *MongoStore) AgeBatch(ctx context.Context, userIDs []int64, step int) (int64, int64, error) {
	var scoresAged, queueRows int64
	now := time.Now().UTC()

	err := s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		res, err := s.db.NewQuery(scoresCollection).
			In("user_id", userIDs).
			Lt("current_score", queue.ScoreFreezeThreshold).
			Inc(txCtx,
				bson.M{"current_score": step},
				bson.M{"last_queue_check": now, "updated_at": now},
			)
		if err != nil {
			return err
		}
		scoresAged = res.ModifiedCount

		qres, err := s.db.NewQuery(queueCollection).
			In("user_id", userIDs).
			Eq("active", true).
			Eq("status", queue.EntryPending).
			Inc(txCtx,
				bson.M{"priority_score": step},
				bson.M{"updated_at": now},
			)
		if err != nil {
			return err
		}
		queueRows = qres.ModifiedCount
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return scoresAged, queueRows, nil
}
