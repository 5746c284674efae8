package mongo

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterDocNullAndEquality(t *testing.T) {
	q := &QueryBuilder{filter: bson.M{}}
	q.Eq("status", "available").IsNull("logged_out_at")

	want := bson.M{
		"status":        "available",
		"logged_out_at": nil,
	}
	if got := q.FilterDoc(); !reflect.DeepEqual(got, want) {
		t.Errorf("FilterDoc() = %v, want %v", got, want)
	}
}

func TestFilterDocNotNull(t *testing.T) {
	q := &QueryBuilder{filter: bson.M{}}
	q.IsNotNull("ended_at")

	want := bson.M{"ended_at": bson.M{"$ne": nil}}
	if got := q.FilterDoc(); !reflect.DeepEqual(got, want) {
		t.Errorf("FilterDoc() = %v, want %v", got, want)
	}
}
