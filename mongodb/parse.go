package mongodb

import (
	"strconv"
	"strings"

	"github.com/morikuni/failure/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ParseDocument parses a document written in MongoDB Extended JSON,
// canonical or relaxed. Empty input yields an empty document.
func ParseDocument(s string) (bson.D, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return bson.D{}, nil
	}

	var d bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &d); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrInvalidArgument),
			failure.Message("Invalid Extended JSON document: "+err.Error()),
		)
	}
	return d, nil
}

// ParseDocuments parses an Extended JSON array of documents
func ParseDocuments(s string) ([]bson.D, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return nil, invalidArgument("expected a JSON array of documents")
	}

	// Extended JSON decoding needs a document at the top level.
	var wrapper struct {
		Documents []bson.D `bson:"documents"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"documents":`+s+`}`), false, &wrapper); err != nil {
		return nil, failure.Wrap(err, failure.WithCode(ErrInvalidArgument),
			failure.Message("Invalid Extended JSON array: "+err.Error()),
		)
	}
	return wrapper.Documents, nil
}

// ParsePipeline parses an aggregation pipeline written as an Extended JSON array of stages
func ParsePipeline(s string) ([]bson.D, error) {
	stages, err := ParseDocuments(s)
	if err != nil {
		return nil, err
	}
	for i, stage := range stages {
		if len(stage) != 1 || !strings.HasPrefix(stage[0].Key, "$") {
			return nil, failure.New(ErrInvalidArgument,
				failure.Message("Each pipeline stage must be a document with a single $-prefixed key"),
				failure.Context{"stage": strconv.Itoa(i)},
			)
		}
	}
	return stages, nil
}
