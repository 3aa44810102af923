package databases

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPaginate struct {
	limit int64
	page  int64
}

func newMongoPaginate(limit, page int) *mongoPaginate {
	if page < 1 {
		page = 1
	}
	return &mongoPaginate{
		limit: int64(limit),
		page:  int64(page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	l := mp.limit
	skip := mp.page*mp.limit - mp.limit
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}

	return &fOpt
}

// unsetOrEmpty matches documents where field is missing, null or ""
func unsetOrEmpty() bson.M {
	return bson.M{"$in": bson.A{nil, ""}}
}

// sortOrder maps an oldest-first flag to a mongo sort direction
func sortOrder(oldestFirst bool) int {
	if oldestFirst {
		return 1
	}
	return -1
}
