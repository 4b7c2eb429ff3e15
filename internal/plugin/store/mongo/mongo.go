package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/case-recorder/internal/config"
	"github.com/chirino/case-recorder/internal/model"
	registrymigrate "github.com/chirino/case-recorder/internal/registry/migrate"
	registrystore "github.com/chirino/case-recorder/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultDBName = "openmdao_blue"

const (
	collUsers = "users"
	collCases = "cases"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.Backend, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			log.Info("Connected to MongoDB", "database", databaseName(cfg))
			return New(client, databaseName(cfg)), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

func databaseName(cfg *config.Config) string {
	if cfg != nil && cfg.DBName != "" {
		return cfg.DBName
	}
	return defaultDBName
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	if err := EnsureSchema(ctx, client.Database(databaseName(cfg))); err != nil {
		return err
	}
	log.Info("MongoDB schema migration complete")
	return nil
}

// EnsureSchema creates every collection with its indexes. The unique indexes
// make identifier allocation collision-safe at the storage layer.
func EnsureSchema(ctx context.Context, db *mongo.Database) error {
	collections := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collCases: {
			{Keys: bson.D{{Key: model.FieldCaseID, Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: model.FieldOwners, Value: 1}}},
		},
	}
	for _, coll := range model.Collections() {
		indexes := []mongo.IndexModel{
			{Keys: bson.D{{Key: model.FieldCaseID, Value: 1}, {Key: model.FieldOwners, Value: 1}}},
		}
		if coll.IsIteration() {
			indexes = append(indexes,
				mongo.IndexModel{Keys: bson.D{{Key: model.FieldCaseID, Value: 1}, {Key: model.FieldCounter, Value: -1}}},
				mongo.IndexModel{Keys: bson.D{{Key: model.FieldCaseID, Value: 1}, {Key: model.FieldIterationCoordinate, Value: 1}}},
			)
		}
		collections[string(coll)] = indexes
	}

	for name, indexes := range collections {
		// Ensure collection exists
		db.CreateCollection(ctx, name)
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

// MongoStore implements Backend using MongoDB. Documents of every collection
// are stored flat: the envelope fields sit next to the payload fields.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// New wraps an already connected client.
func New(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(dbName)}
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type userDoc struct {
	Token  string `bson:"token"`
	Name   string `bson:"name"`
	Email  string `bson:"email"`
	Active bool   `bson:"active"`
}

func (s *MongoStore) users() *mongo.Collection { return s.db.Collection(collUsers) }
func (s *MongoStore) cases() *mongo.Collection { return s.db.Collection(collCases) }
func (s *MongoStore) documents(coll model.Collection) *mongo.Collection {
	return s.db.Collection(string(coll))
}

func (s *MongoStore) InsertUser(ctx context.Context, user model.User) error {
	_, err := s.users().InsertOne(ctx, userDoc{Token: user.Token, Name: user.Name, Email: user.Email, Active: user.Active})
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.ConflictError{Message: "user token or email already registered"}
	}
	return err
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M, id string) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &model.User{Token: doc.Token, Name: doc.Name, Email: doc.Email, Active: doc.Active}, nil
}

func (s *MongoStore) FindUserByToken(ctx context.Context, token string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"token": token}, "token")
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"email": email}, email)
}

func (s *MongoStore) SetUserActive(ctx context.Context, token string, active bool) error {
	res, err := s.users().UpdateOne(ctx, bson.M{"token": token}, bson.M{"$set": bson.M{"active": active}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: "token"}
	}
	return nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, token string) (bool, error) {
	res, err := s.users().DeleteMany(ctx, bson.M{"token": token})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) InsertCase(ctx context.Context, c model.Case) error {
	doc := bson.D{
		{Key: model.FieldCaseID, Value: c.ID},
		{Key: model.FieldCaseName, Value: c.Name},
		{Key: model.FieldDate, Value: c.Date.UTC()},
		{Key: model.FieldOwners, Value: c.Owners},
	}
	doc = appendPayload(doc, c.Payload.Without(model.FieldCaseName))
	_, err := s.cases().InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.ConflictError{Message: fmt.Sprintf("case %d already exists", c.ID)}
	}
	return err
}

func (s *MongoStore) FindCase(ctx context.Context, caseID int64) (*model.Case, error) {
	var raw bson.D
	err := s.cases().FindOne(ctx, bson.M{model.FieldCaseID: caseID}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "case", ID: strconv.FormatInt(caseID, 10)}
	}
	if err != nil {
		return nil, err
	}
	return caseFromBSON(raw)
}

func (s *MongoStore) ListCasesByOwner(ctx context.Context, token string) ([]model.Case, error) {
	cur, err := s.cases().Find(ctx, bson.M{model.FieldOwners: token}, options.Find().SetSort(bson.D{{Key: model.FieldDate, Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Case
	for cur.Next(ctx) {
		var raw bson.D
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		c, err := caseFromBSON(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, cur.Err()
}

func (s *MongoStore) UpdateCaseName(ctx context.Context, caseID int64, name string) (bool, error) {
	res, err := s.cases().UpdateOne(ctx, bson.M{model.FieldCaseID: caseID}, bson.M{"$set": bson.M{model.FieldCaseName: name}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) DeleteCase(ctx context.Context, caseID int64) (bool, error) {
	res, err := s.cases().DeleteOne(ctx, bson.M{model.FieldCaseID: caseID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) FindDocuments(ctx context.Context, coll model.Collection, q registrystore.DocumentQuery) ([]model.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.documents(coll).Find(ctx, documentFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []model.Document
	for cur.Next(ctx) {
		var raw bson.D
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		doc, err := documentFromBSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", coll, err)
		}
		out = append(out, *doc)
	}
	return out, cur.Err()
}

func (s *MongoStore) InsertDocument(ctx context.Context, coll model.Collection, doc model.Document) error {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	raw := bson.D{
		{Key: model.FieldID, Value: id},
		{Key: model.FieldCaseID, Value: doc.CaseID},
		{Key: model.FieldDate, Value: doc.Timestamp.UTC()},
		{Key: model.FieldOwners, Value: doc.Owners},
	}
	raw = appendPayload(raw, doc.Payload)
	_, err := s.documents(coll).InsertOne(ctx, raw)
	return err
}

func (s *MongoStore) DeleteDocuments(ctx context.Context, coll model.Collection, q registrystore.DocumentQuery) (int64, error) {
	res, err := s.documents(coll).DeleteMany(ctx, documentFilter(q))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) MaxCounter(ctx context.Context, coll model.Collection, caseID int64) (int64, bool, error) {
	var raw bson.D
	err := s.documents(coll).FindOne(ctx,
		bson.M{model.FieldCaseID: caseID, model.FieldCounter: bson.M{"$type": "number"}},
		options.FindOne().
			SetSort(bson.D{{Key: model.FieldCounter, Value: -1}}).
			SetProjection(bson.M{model.FieldCounter: 1}),
	).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	for _, e := range raw {
		if e.Key != model.FieldCounter {
			continue
		}
		v, err := valueFromBSON(e.Value)
		if err != nil {
			return 0, false, err
		}
		if n, ok := v.Int64(); ok {
			return n, true, nil
		}
		if f, ok := v.Float(); ok {
			return int64(f), true, nil
		}
	}
	return 0, false, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func documentFilter(q registrystore.DocumentQuery) bson.D {
	filter := bson.D{{Key: model.FieldCaseID, Value: q.CaseID}}
	if q.Owner != "" {
		filter = append(filter, bson.E{Key: model.FieldOwners, Value: q.Owner})
	}
	if q.Field != "" {
		filter = append(filter, bson.E{Key: q.Field, Value: valueToBSON(q.Value)})
	}
	return filter
}

func caseFromBSON(raw bson.D) (*model.Case, error) {
	env, payload, err := splitEnvelope(raw)
	if err != nil {
		return nil, err
	}
	c := &model.Case{ID: env.caseID, Date: env.date, Owners: env.owners}
	if v, ok := payload.Get(model.FieldCaseName); ok {
		c.Name, _ = v.Str()
		payload = payload.Without(model.FieldCaseName)
	}
	c.Payload = payload
	return c, nil
}

func documentFromBSON(raw bson.D) (*model.Document, error) {
	env, payload, err := splitEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return &model.Document{ID: env.id, CaseID: env.caseID, Timestamp: env.date, Owners: env.owners, Payload: payload}, nil
}

type envelope struct {
	id     string
	caseID int64
	date   time.Time
	owners []string
}

func splitEnvelope(raw bson.D) (envelope, model.Payload, error) {
	var (
		env     envelope
		payload model.Payload
	)
	for _, e := range raw {
		switch e.Key {
		case model.FieldID:
			switch id := e.Value.(type) {
			case string:
				env.id = id
			case bson.ObjectID:
				env.id = id.Hex()
			}
		case model.FieldCaseID:
			n, ok := bsonInt(e.Value)
			if !ok {
				return env, nil, fmt.Errorf("case_id has unexpected type %T", e.Value)
			}
			env.caseID = n
		case model.FieldDate:
			switch d := e.Value.(type) {
			case bson.DateTime:
				env.date = d.Time().UTC()
			case time.Time:
				env.date = d.UTC()
			case string:
				env.date, _ = time.Parse(time.RFC3339Nano, d)
			}
		case model.FieldOwners:
			arr, _ := e.Value.(bson.A)
			for _, o := range arr {
				if s, ok := o.(string); ok {
					env.owners = append(env.owners, s)
				}
			}
		default:
			v, err := valueFromBSON(e.Value)
			if err != nil {
				return env, nil, fmt.Errorf("field %q: %w", e.Key, err)
			}
			payload = append(payload, model.Field{Key: e.Key, Value: v})
		}
	}
	return env, payload, nil
}

func appendPayload(doc bson.D, p model.Payload) bson.D {
	for _, f := range p.Without(model.EnvelopeFields...) {
		doc = append(doc, bson.E{Key: f.Key, Value: valueToBSON(f.Value)})
	}
	return doc
}

func valueToBSON(v model.Value) any {
	switch v.Kind() {
	case model.KindNumber:
		if n, ok := v.Int64(); ok {
			return n
		}
		f, _ := v.Float()
		return f
	case model.KindString:
		s, _ := v.Str()
		return s
	case model.KindBool:
		b, _ := v.Boolean()
		return b
	case model.KindArray:
		items := v.Items()
		out := make(bson.A, len(items))
		for i, item := range items {
			out[i] = valueToBSON(item)
		}
		return out
	case model.KindObject:
		fields := v.Fields()
		out := make(bson.D, len(fields))
		for i, f := range fields {
			out[i] = bson.E{Key: f.Key, Value: valueToBSON(f.Value)}
		}
		return out
	}
	return nil
}

func valueFromBSON(x any) (model.Value, error) {
	switch t := x.(type) {
	case nil:
		return model.Null(), nil
	case bson.D:
		fields := make([]model.Field, 0, len(t))
		for _, e := range t {
			v, err := valueFromBSON(e.Value)
			if err != nil {
				return model.Value{}, err
			}
			fields = append(fields, model.Field{Key: e.Key, Value: v})
		}
		return model.Object(fields...), nil
	case bson.A:
		items := make([]model.Value, 0, len(t))
		for _, item := range t {
			v, err := valueFromBSON(item)
			if err != nil {
				return model.Value{}, err
			}
			items = append(items, v)
		}
		return model.List(items...), nil
	case bson.DateTime:
		return model.String(t.Time().UTC().Format(time.RFC3339Nano)), nil
	case bson.ObjectID:
		return model.String(t.Hex()), nil
	case bson.Null, bson.Undefined:
		return model.Null(), nil
	}
	if n, ok := bsonInt(x); ok {
		return model.Int(n), nil
	}
	return model.FromInterface(x)
}

func bsonInt(x any) (int64, bool) {
	switch n := x.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

var _ registrystore.Backend = (*MongoStore)(nil)
