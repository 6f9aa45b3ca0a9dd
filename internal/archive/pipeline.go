package archive

import (
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// FirstCheckpointPipeline groups checkpoint documents by thread and keeps the
// first payload the server encounters for each group. No $sort is added, so
// "first" follows the server's iteration order.
func FirstCheckpointPipeline(threadField, checkpointField string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + threadField},
			{Key: "firstMessage", Value: bson.D{{Key: "$first", Value: "$" + checkpointField}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 1},
			{Key: "firstMessage", Value: 1},
		}}},
	}
}

// ThreadIDsPipeline returns every distinct thread identifier.
func ThreadIDsPipeline(threadField string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + threadField},
		}}},
	}
}
