package sessions

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/claimtech/dialler/internal/lookup"
)

// SystemAgentID owns AI-handled sessions, which have no human agent.
// Seeded into the agents collection at startup.
var SystemAgentID = mustObjectID("000000000000000000000001")

func mustObjectID(hex string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		panic(err)
	}
	return id
}

// BuildSnapshot captures the caller context at routing time. Ids are
// written as int64 so snapshots round-trip through BSON without
// degrading to floats.
func BuildSnapshot(cc *lookup.CallerContext) bson.M {
	if cc == nil || !cc.Found {
		return bson.M{"known_caller": false}
	}
	claims := make([]bson.M, 0, len(cc.Claims))
	for _, c := range cc.Claims {
		claims = append(claims, bson.M{
			"id":     c.ID,
			"type":   c.Type,
			"status": c.Status,
			"lender": c.Lender,
		})
	}
	return bson.M{
		"known_caller":   true,
		"user_id":        cc.UserID,
		"first_name":     cc.FirstName,
		"last_name":      cc.LastName,
		"claim_count":    cc.ClaimCount,
		"claims":         claims,
		"priority_score": cc.PriorityScore,
	}
}

// NormalizeID coerces a value read back from a snapshot or webhook
// payload into an int64 id. BSON decoding hands back int32, int64 or
// float64 depending on how the number was written.
func NormalizeID(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return id
	default:
		return 0
	}
}
