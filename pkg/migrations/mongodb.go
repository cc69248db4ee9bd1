package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureAuditCollection creates the decision audit indexes. A positive
// retention adds a TTL index on decided_at.
func EnsureAuditCollection(ctx context.Context, db *mongo.Database, name string, retention time.Duration) error {
	collection := db.Collection(name)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "decision_id", Value: 1}},
			Options: options.Index().SetName("idx_audit_decision_id").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "decided_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_decided_at"),
		},
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetName("idx_audit_event_id"),
		},
		{
			Keys:    bson.D{{Key: "verdict", Value: 1}, {Key: "mechanism", Value: 1}},
			Options: options.Index().SetName("idx_audit_verdict_mechanism"),
		},
	}

	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "decided_at", Value: 1}},
			Options: options.Index().SetName("idx_audit_ttl").SetExpireAfterSeconds(int32(retention.Seconds())),
		})
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
