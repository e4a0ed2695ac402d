package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultDatabase               = "k8s-web-data"
	defaultServerSelectionTimeout = 250 * time.Millisecond
)

// MongoOptions configures the MongoDB connection.
type MongoOptions struct {
	URI                    string
	Collection             string
	TLS                    bool
	TLSCAFile              string
	TLSAllowInvalid        bool
	ServerSelectionTimeout time.Duration
}

// MongoStore keeps entities in a MongoDB collection. Connection pooling is
// left to the driver.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoStore creates the client. The driver connects lazily, so this does
// not fail when the server is unreachable; Status does.
func NewMongoStore(ctx context.Context, opts MongoOptions, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.ServerSelectionTimeout
	if timeout <= 0 {
		timeout = defaultServerSelectionTimeout
	}

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(timeout).
		// Nested documents decode as maps so they encode as JSON objects.
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	if opts.TLS {
		tlsCfg, err := newTLSConfig(opts.TLSCAFile, opts.TLSAllowInvalid)
		if err != nil {
			return nil, err
		}
		clientOpts.SetTLSConfig(tlsCfg)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	db := databaseName(opts.URI)
	logger.Info("mongodb client created",
		zap.String("database", db),
		zap.String("collection", opts.Collection),
		zap.Bool("tls", opts.TLS),
	)

	return &MongoStore{
		client:     client,
		collection: client.Database(db).Collection(opts.Collection),
		logger:     logger,
	}, nil
}

// Get returns the document with the given id.
func (s *MongoStore) Get(ctx context.Context, id string) (Document, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = s.collection.FindOne(ctx, bson.M{IDField: oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("find entity %s: %w", id, err)
	}
	return Document(doc), nil
}

// List returns every document in the collection.
func (s *MongoStore) List(ctx context.Context) ([]Document, error) {
	cursor, err := s.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find entities: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}

	out := make([]Document, 0, len(results))
	for _, r := range results {
		out = append(out, Document(r))
	}
	return out, nil
}

// Insert adds doc to the collection and returns the generated identifier.
func (s *MongoStore) Insert(ctx context.Context, doc Document) (string, error) {
	res, err := s.collection.InsertOne(ctx, bson.M(doc))
	if err != nil {
		return "", fmt.Errorf("insert entity: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

// Status runs buildInfo against the server.
func (s *MongoStore) Status(ctx context.Context) (Status, error) {
	var info bson.M
	err := s.client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info)
	if err != nil {
		return Status{}, err
	}

	status := Status{OK: isOK(info["ok"]), Debug: info["debug"]}
	if v, ok := info["version"].(string); ok {
		status.Version = v
	}
	return status, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func isOK(v any) bool {
	switch n := v.(type) {
	case float64:
		return n == 1
	case int32:
		return n == 1
	case int64:
		return n == 1
	case int:
		return n == 1
	case bool:
		return n
	default:
		return false
	}
}

// databaseName extracts the default database from the connection string.
func databaseName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return defaultDatabase
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		return name
	}
	return defaultDatabase
}

func newTLSConfig(caFile string, allowInvalid bool) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: allowInvalid, //nolint:gosec // opt-in for development clusters
	}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read TLS CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
