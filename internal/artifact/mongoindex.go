package artifact

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/settld/core/pkg/obs/log"
)

// MongoConnection is the hub every MongoIndex call goes through, mirroring
// the teacher's common/mmongo connection-hub shape (a struct wrapping the
// driver client, a Connect safe to call repeatedly).
type MongoConnection struct {
	ConnectionString string
	Database         string
	Client           *mongo.Client
	Logger           log.Logger
}

// Connect dials Mongo once; safe to call repeatedly, only the first call
// does work.
func (c *MongoConnection) Connect(ctx context.Context) error {
	if c.Client != nil {
		return nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.ConnectionString))
	if err != nil {
		return fmt.Errorf("artifact: connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("artifact: ping mongo: %w", err)
	}

	c.logger().Info("artifact: connected to mongo")
	c.Client = client

	return nil
}

func (c *MongoConnection) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return &log.NoneLogger{}
}

func (c *MongoConnection) collection() *mongo.Collection {
	return c.Client.Database(c.Database).Collection("artifacts")
}

// mongoArtifactDoc is the on-disk shape of one artifact index entry, keyed
// by (tenantId, artifactId) with artifactHash immutable per id.
type mongoArtifactDoc struct {
	TenantID     string         `bson:"tenantId"`
	ArtifactID   string         `bson:"artifactId"`
	ArtifactType string         `bson:"artifactType"`
	ArtifactHash string         `bson:"artifactHash"`
	Body         mongoBodyDoc   `bson:"body"`
}

type mongoBodyDoc struct {
	SchemaVersion   string         `bson:"schemaVersion"`
	TenantID        string         `bson:"tenantId"`
	SourceEventID   string         `bson:"sourceEventId"`
	SourceChainHash string         `bson:"sourceChainHash"`
	GeneratedAt     bson.DateTime  `bson:"generatedAt"`
	Payload         map[string]any `bson:"payload"`
}

// MongoIndex implements Index against a Mongo collection, the production
// counterpart to store/memory's in-process ArtifactIndex fixture.
type MongoIndex struct {
	Conn *MongoConnection
}

// Put implements Index: upserts by (tenantId, artifactId) so a re-run of an
// idempotent worker tick never produces a duplicate row.
func (m *MongoIndex) Put(ctx context.Context, ref Ref) error {
	doc := mongoArtifactDoc{
		TenantID:     ref.TenantID,
		ArtifactID:   ref.ArtifactID,
		ArtifactType: ref.ArtifactType,
		ArtifactHash: ref.ArtifactHash,
		Body: mongoBodyDoc{
			SchemaVersion:   ref.Body.SchemaVersion,
			TenantID:        ref.Body.TenantID,
			SourceEventID:   ref.Body.SourceEventID,
			SourceChainHash: ref.Body.SourceChainHash,
			GeneratedAt:     bson.NewDateTimeFromTime(ref.Body.GeneratedAt),
			Payload:         ref.Body.Payload,
		},
	}

	filter := bson.M{"tenantId": ref.TenantID, "artifactId": ref.ArtifactID}

	_, err := m.Conn.collection().ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("artifact: mongo put %s/%s: %w", ref.TenantID, ref.ArtifactID, err)
	}

	return nil
}

// Get implements Index.
func (m *MongoIndex) Get(ctx context.Context, tenantID, artifactID string) (Ref, bool, error) {
	var doc mongoArtifactDoc

	err := m.Conn.collection().FindOne(ctx, bson.M{"tenantId": tenantID, "artifactId": artifactID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return Ref{}, false, nil
	}

	if err != nil {
		return Ref{}, false, fmt.Errorf("artifact: mongo get %s/%s: %w", tenantID, artifactID, err)
	}

	ref := Ref{
		TenantID:     doc.TenantID,
		ArtifactID:   doc.ArtifactID,
		ArtifactType: doc.ArtifactType,
		ArtifactHash: doc.ArtifactHash,
		Body: Body{
			SchemaVersion:   doc.Body.SchemaVersion,
			TenantID:        doc.Body.TenantID,
			SourceEventID:   doc.Body.SourceEventID,
			SourceChainHash: doc.Body.SourceChainHash,
			GeneratedAt:     doc.Body.GeneratedAt.Time(),
			Payload:         doc.Body.Payload,
		},
	}

	return ref, true, nil
}
