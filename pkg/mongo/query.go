package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// QueryBuilder provides a fluent interface for MongoDB queries
type QueryBuilder struct {
	collection *mongo.Collection
	filter     bson.M
	sort       bson.D
	limit      *int64
	skip       *int64
	projection bson.M
}

// NewQuery creates a new query builder for a collection
func (c *Client) NewQuery(collectionName string) *QueryBuilder {
	return &QueryBuilder{
		collection: c.Collection(collectionName),
		filter:     bson.M{},
		projection: bson.M{},
	}
}

// Eq adds an equality filter
func (q *QueryBuilder) Eq(field string, value interface{}) *QueryBuilder {
	q.filter[field] = value
	return q
}

// Ne adds a not-equal filter
func (q *QueryBuilder) Ne(field string, value interface{}) *QueryBuilder {
	q.filter[field] = bson.M{"$ne": value}
	return q
}

// In adds an "in" filter
func (q *QueryBuilder) In(field string, values interface{}) *QueryBuilder {
	q.filter[field] = bson.M{"$in": values}
	return q
}

// IsNull adds a null check filter
func (q *QueryBuilder) IsNull(field string) *QueryBuilder {
	q.filter[field] = nil
	return q
}

// IsNotNull adds a not-null check filter
func (q *QueryBuilder) IsNotNull(field string) *QueryBuilder {
	q.filter[field] = bson.M{"$ne": nil}
	return q
}

// Or replaces the filter with a disjunction of the given clauses
func (q *QueryBuilder) Or(clauses ...bson.M) *QueryBuilder {
	q.filter["$or"] = clauses
	return q
}

// Lt adds a less-than filter
func (q *QueryBuilder) Lt(field string, value interface{}) *QueryBuilder {
	if existing, ok := q.filter[field].(bson.M); ok {
		existing["$lt"] = value
	} else {
		q.filter[field] = bson.M{"$lt": value}
	}
	return q
}

// Gte adds a greater than or equal filter
func (q *QueryBuilder) Gte(field string, value interface{}) *QueryBuilder {
	if existing, ok := q.filter[field].(bson.M); ok {
		existing["$gte"] = value
	} else {
		q.filter[field] = bson.M{"$gte": value}
	}
	return q
}

// Lte adds a less than or equal filter
func (q *QueryBuilder) Lte(field string, value interface{}) *QueryBuilder {
	if existing, ok := q.filter[field].(bson.M); ok {
		existing["$lte"] = value
	} else {
		q.filter[field] = bson.M{"$lte": value}
	}
	return q
}

// Select sets the projection (fields to return)
func (q *QueryBuilder) Select(fields ...string) *QueryBuilder {
	if len(fields) == 0 {
		q.projection = bson.M{}
		return q
	}
	projection := bson.M{}
	for _, field := range fields {
		if field == "*" {
			projection = bson.M{}
			break
		}
		projection[field] = 1
	}
	q.projection = projection
	return q
}

// Limit sets the limit
func (q *QueryBuilder) Limit(limit int64) *QueryBuilder {
	q.limit = &limit
	return q
}

// Skip sets the skip value
func (q *QueryBuilder) Skip(skip int64) *QueryBuilder {
	q.skip = &skip
	return q
}

// Sort sets the sort order
func (q *QueryBuilder) Sort(field string, ascending bool) *QueryBuilder {
	direction := 1
	if !ascending {
		direction = -1
	}
	q.sort = append(q.sort, bson.E{Key: field, Value: direction})
	return q
}

// Filter returns the accumulated filter document
func (q *QueryBuilder) FilterDoc() bson.M {
	return q.filter
}

// Find executes a find query and returns results
func (q *QueryBuilder) Find(ctx context.Context) ([]map[string]interface{}, error) {
	opts := options.Find()
	if q.limit != nil {
		opts.SetLimit(*q.limit)
	}
	if q.skip != nil {
		opts.SetSkip(*q.skip)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}
	if len(q.projection) > 0 {
		opts.SetProjection(q.projection)
	}

	cursor, err := q.collection.Find(ctx, q.filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []map[string]interface{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	return results, nil
}

// FindInto executes a find query and decodes results into out (a pointer to
// a slice of structs).
func (q *QueryBuilder) FindInto(ctx context.Context, out interface{}) error {
	opts := options.Find()
	if q.limit != nil {
		opts.SetLimit(*q.limit)
	}
	if q.skip != nil {
		opts.SetSkip(*q.skip)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}
	if len(q.projection) > 0 {
		opts.SetProjection(q.projection)
	}

	cursor, err := q.collection.Find(ctx, q.filter, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

// FindOne executes a find one query
func (q *QueryBuilder) FindOne(ctx context.Context) (map[string]interface{}, error) {
	opts := options.FindOne()
	if len(q.projection) > 0 {
		opts.SetProjection(q.projection)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}

	var result map[string]interface{}
	err := q.collection.FindOne(ctx, q.filter, opts).Decode(&result)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// FindOneInto decodes a single document into out. Returns (false, nil) when
// no document matches.
func (q *QueryBuilder) FindOneInto(ctx context.Context, out interface{}) (bool, error) {
	opts := options.FindOne()
	if len(q.projection) > 0 {
		opts.SetProjection(q.projection)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}

	err := q.collection.FindOne(ctx, q.filter, opts).Decode(out)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the count of matching documents
func (q *QueryBuilder) Count(ctx context.Context) (int64, error) {
	return q.collection.CountDocuments(ctx, q.filter)
}

// Insert inserts a document
func (q *QueryBuilder) Insert(ctx context.Context, document interface{}) (interface{}, error) {
	result, err := q.collection.InsertOne(ctx, document)
	if err != nil {
		return nil, err
	}
	return result.InsertedID, nil
}

// Upsert updates or inserts a document matching filter
func (q *QueryBuilder) Upsert(ctx context.Context, filter bson.M, update interface{}) (*mongo.UpdateResult, error) {
	opts := options.Update().SetUpsert(true)
	return q.collection.UpdateOne(ctx, filter, bson.M{"$set": update}, opts)
}

// SetOnInsert inserts the given document only if nothing matches the filter;
// an existing document is left untouched.
func (q *QueryBuilder) SetOnInsert(ctx context.Context, document interface{}) (*mongo.UpdateResult, error) {
	opts := options.Update().SetUpsert(true)
	return q.collection.UpdateOne(ctx, q.filter, bson.M{"$setOnInsert": document}, opts)
}

// Update updates matching documents
func (q *QueryBuilder) Update(ctx context.Context, update interface{}) (*mongo.UpdateResult, error) {
	return q.collection.UpdateMany(ctx, q.filter, bson.M{"$set": update})
}

// UpdateOne updates a single matching document
func (q *QueryBuilder) UpdateOne(ctx context.Context, update interface{}) (*mongo.UpdateResult, error) {
	return q.collection.UpdateOne(ctx, q.filter, bson.M{"$set": update})
}

// Inc applies relative increments to all matching documents, optionally
// $set-ing extra fields in the same update. Writers of score fields must use
// this rather than read-modify-write so concurrent increments are not lost.
func (q *QueryBuilder) Inc(ctx context.Context, increments bson.M, set bson.M) (*mongo.UpdateResult, error) {
	update := bson.M{"$inc": increments}
	if len(set) > 0 {
		update["$set"] = set
	}
	return q.collection.UpdateMany(ctx, q.filter, update)
}

// IncOne applies relative increments to a single matching document
func (q *QueryBuilder) IncOne(ctx context.Context, increments bson.M, set bson.M) (*mongo.UpdateResult, error) {
	update := bson.M{"$inc": increments}
	if len(set) > 0 {
		update["$set"] = set
	}
	return q.collection.UpdateOne(ctx, q.filter, update)
}

// ClaimOne atomically updates a single document matching the filter and
// returns whether the claim succeeded. The filter must include the
// precondition (e.g. status still "available"); a zero matched count means
// someone else got there first.
func (q *QueryBuilder) ClaimOne(ctx context.Context, set bson.M) (bool, error) {
	result, err := q.collection.UpdateOne(ctx, q.filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

// Delete deletes matching documents
func (q *QueryBuilder) Delete(ctx context.Context) (*mongo.DeleteResult, error) {
	return q.collection.DeleteMany(ctx, q.filter)
}

// DeleteOne deletes a single matching document
func (q *QueryBuilder) DeleteOne(ctx context.Context) (*mongo.DeleteResult, error) {
	return q.collection.DeleteOne(ctx, q.filter)
}

// AddTimestamps stamps created_at/updated_at on a new document
func AddTimestamps(doc map[string]interface{}) {
	now := time.Now().UTC()
	doc["created_at"] = now
	doc["updated_at"] = now
}

// UpdateTimestamp stamps updated_at
func UpdateTimestamp(doc map[string]interface{}) {
	doc["updated_at"] = time.Now().UTC()
}
