package sink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"hush/pkg/models"
)

// MongoAuditSink stores one AuditEntry per decision. Redelivered records
// hit the unique decision_id index and are ignored.
type MongoAuditSink struct {
	collection *mongo.Collection
}

func NewMongoAuditSink(db *mongo.Database, collection string) *MongoAuditSink {
	return &MongoAuditSink{collection: db.Collection(collection)}
}

func (s *MongoAuditSink) Name() string {
	return "mongo:" + s.collection.Name()
}

func (s *MongoAuditSink) Publish(ctx context.Context, record models.DecisionRecord) error {
	if _, err := s.collection.InsertOne(ctx, NewAuditEntry(record)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
