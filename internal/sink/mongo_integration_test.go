//go:build integration

package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"hush/internal/testinfra"
	"hush/pkg/migrations"
)

func TestMongoAuditSink(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, migrations.EnsureAuditCollection(ctx, db, "decision_audit", 24*time.Hour))
	require.NoError(t, migrations.EnsureAuditCollection(ctx, db, "decision_audit", 24*time.Hour), "index creation is repeatable")

	s := NewMongoAuditSink(db, "decision_audit")
	assert.Equal(t, "mongo:decision_audit", s.Name())

	record := sampleRecord()
	require.NoError(t, s.Publish(ctx, record))
	require.NoError(t, s.Publish(ctx, record), "redelivery is ignored")

	n, err := db.Collection("decision_audit").CountDocuments(ctx, bson.M{"user_id": "u2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got AuditEntry
	require.NoError(t, db.Collection("decision_audit").FindOne(ctx, bson.M{"decision_id": "dec-1"}).Decode(&got))
	assert.Equal(t, record.Decision.Verdict, got.Verdict)
	assert.Equal(t, record.Decision.Reason, got.Reason)
	assert.Len(t, got.Trace, 2)
}
