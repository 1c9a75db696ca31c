// Package mongo persists parcels, computed outputs, risk events,
// subscriptions and users in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// Store is the MongoDB persistence collaborator.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	clock  clockwork.Clock
	logger *slog.Logger
}

// Connect opens a client, verifies it with a ping and ensures indexes.
func Connect(ctx context.Context, uri, database string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Store{client: client, db: client.Database(database), clock: clock, logger: logger}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("mongo connected", "database", database)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collParcels: {
			{Keys: bson.D{{Key: "parcelName", Value: 1}, {Key: "villageName", Value: 1}}},
		},
		collOutputs: {
			{Keys: bson.D{{Key: "parcelId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collEvents: {
			{Keys: bson.D{{Key: "parcelId", Value: 1}, {Key: "generatedAt", Value: -1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "generatedAt", Value: -1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "generatedAt", Value: -1}}},
		},
		collSubscriptions: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "parcelId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "parcelId", Value: 1}, {Key: "isActive", Value: 1}}},
		},
		collUsers: {
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CheckReadiness pings the primary.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo not ready: %w", err)
	}
	return nil
}

// FindParcelByID returns domain.ErrNotFound for unknown or malformed ids.
func (s *Store) FindParcelByID(ctx context.Context, id string) (domain.ParcelRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ParcelRecord{}, fmt.Errorf("parcel %q: %w", id, domain.ErrNotFound)
	}
	var doc parcelDoc
	err = s.db.Collection(collParcels).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ParcelRecord{}, fmt.Errorf("parcel %q: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ParcelRecord{}, fmt.Errorf("find parcel %q: %w", id, err)
	}
	return doc.toDomain(), nil
}

// FindParcelsByName returns every parcel with the given name.
func (s *Store) FindParcelsByName(ctx context.Context, name string) ([]domain.ParcelRecord, error) {
	var docs []parcelDoc
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if err := s.findAll(ctx, collParcels, bson.D{{Key: "parcelName", Value: name}}, opts, &docs); err != nil {
		return nil, fmt.Errorf("find parcels named %q: %w", name, err)
	}
	out := make([]domain.ParcelRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// FindOutput returns the computed output for a parcel.
func (s *Store) FindOutput(ctx context.Context, parcelID string) (domain.ComputedOutput, error) {
	var doc outputDoc
	err := s.db.Collection(collOutputs).FindOne(ctx, bson.D{{Key: "parcelId", Value: parcelID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ComputedOutput{}, fmt.Errorf("output for parcel %q: %w", parcelID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ComputedOutput{}, fmt.Errorf("find output for parcel %q: %w", parcelID, err)
	}
	return doc.toDomain(), nil
}

// ApplyOutputPatch merges patch into the parcel's output in one upsert.
func (s *Store) ApplyOutputPatch(ctx context.Context, parcelID string, patch domain.OutputPatch) (domain.ComputedOutput, error) {
	if err := patch.Validate(); err != nil {
		return domain.ComputedOutput{}, err
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc outputDoc
	err := s.db.Collection(collOutputs).FindOneAndUpdate(ctx,
		bson.D{{Key: "parcelId", Value: parcelID}},
		patchUpdate(parcelID, patch, s.clock.Now()),
		opts,
	).Decode(&doc)
	if err != nil {
		return domain.ComputedOutput{}, fmt.Errorf("apply %s patch to parcel %q: %w", patch.Stage, parcelID, err)
	}
	return doc.toDomain(), nil
}

// InsertRiskEvent stores a new event and returns it with its id.
func (s *Store) InsertRiskEvent(ctx context.Context, e domain.RiskEvent) (domain.RiskEvent, error) {
	if err := e.Validate(); err != nil {
		return domain.RiskEvent{}, err
	}
	res, err := s.db.Collection(collEvents).InsertOne(ctx, newEventDoc(e))
	if err != nil {
		return domain.RiskEvent{}, fmt.Errorf("insert %s event for parcel %q: %w", e.Kind, e.ParcelID, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		e.ID = oid.Hex()
	}
	return e, nil
}

// ListEvents returns matching events newest first.
func (s *Store) ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.RiskEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "generatedAt", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	var docs []eventDoc
	if err := s.findAll(ctx, collEvents, eventFilter(f), opts, &docs); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]domain.RiskEvent, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// CountEvents returns the number of matching events, ignoring Limit.
func (s *Store) CountEvents(ctx context.Context, f domain.EventFilter) (int, error) {
	n, err := s.db.Collection(collEvents).CountDocuments(ctx, eventFilter(f))
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(n), nil
}

// ActiveSubscriptionsForParcel lists active subscriptions for a parcel.
func (s *Store) ActiveSubscriptionsForParcel(ctx context.Context, parcelID string) ([]domain.Subscription, error) {
	return s.activeSubscriptions(ctx, bson.E{Key: "parcelId", Value: parcelID})
}

// ActiveSubscriptionsForUser lists a user's active subscriptions.
func (s *Store) ActiveSubscriptionsForUser(ctx context.Context, userID string) ([]domain.Subscription, error) {
	return s.activeSubscriptions(ctx, bson.E{Key: "userId", Value: userID})
}

func (s *Store) activeSubscriptions(ctx context.Context, match bson.E) ([]domain.Subscription, error) {
	filter := bson.D{match, {Key: "isActive", Value: true}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	var docs []subscriptionDoc
	if err := s.findAll(ctx, collSubscriptions, filter, opts, &docs); err != nil {
		return nil, fmt.Errorf("list subscriptions by %s: %w", match.Key, err)
	}
	out := make([]domain.Subscription, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// FindUser returns domain.ErrNotFound for unknown users.
func (s *Store) FindUser(ctx context.Context, userID string) (domain.User, error) {
	var doc userDoc
	err := s.db.Collection(collUsers).FindOne(ctx, bson.D{{Key: "userId", Value: userID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %q: %w", userID, err)
	}
	return doc.toDomain(), nil
}

func (s *Store) findAll(ctx context.Context, coll string, filter bson.D, opts *options.FindOptions, out any) error {
	cur, err := s.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
