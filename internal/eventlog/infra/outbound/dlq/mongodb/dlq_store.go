package mongodb

import (
	"context"
	"fmt"
	"time"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DeadLetterStoreMongoDB guarda los registros de la DLQ en una colección de MongoDB.
type DeadLetterStoreMongoDB struct {
	coll *mongo.Collection
}

func NewDeadLetterStoreMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*DeadLetterStoreMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}
	return &DeadLetterStoreMongoDB{coll: client.Database(dbName).Collection("dead_letters")}, nil
}

// Se define localmente para no llevar tags de BSON al dominio.
type mongoDeadLetter struct {
	ID              string    `bson:"_id"`
	OriginalTopic   string    `bson:"originalTopic"`
	OriginalKey     string    `bson:"originalKey"`
	OriginalMessage string    `bson:"originalMessage"`
	ErrorMessage    string    `bson:"errorMessage"`
	StackTrace      string    `bson:"stackTrace"`
	RetryCount      int       `bson:"retryCount"`
	FailedAt        time.Time `bson:"failedAt"`
	Partition       int       `bson:"partition"`
	Offset          int64     `bson:"offset"`
}

// Record inserta el registro; un _id repetido no se vuelve a escribir.
func (s *DeadLetterStoreMongoDB) Record(ctx context.Context, rec sharedEvents.DeadLetterRecord) error {
	doc := toMongoDeadLetter(rec)
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *DeadLetterStoreMongoDB) List(ctx context.Context, limit int) ([]sharedEvents.DeadLetterRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "failedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []sharedEvents.DeadLetterRecord
	for cursor.Next(ctx) {
		var doc mongoDeadLetter
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rec, err := fromMongoDeadLetter(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, cursor.Err()
}

// EnsureIndexes crea el índice usado por List.
func (s *DeadLetterStoreMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "failedAt", Value: -1}},
	})
	return err
}

// --- Mapeo ---

func toMongoDeadLetter(rec sharedEvents.DeadLetterRecord) mongoDeadLetter {
	return mongoDeadLetter{
		ID:              rec.ID.String(),
		OriginalTopic:   rec.OriginalTopic,
		OriginalKey:     rec.OriginalKey,
		OriginalMessage: rec.OriginalMessage,
		ErrorMessage:    rec.ErrorMessage,
		StackTrace:      rec.StackTrace,
		RetryCount:      rec.RetryCount,
		FailedAt:        rec.FailedAt.UTC(),
		Partition:       rec.Partition,
		Offset:          rec.Offset,
	}
}

func fromMongoDeadLetter(doc mongoDeadLetter) (sharedEvents.DeadLetterRecord, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return sharedEvents.DeadLetterRecord{}, fmt.Errorf("invalid dead letter id %q: %w", doc.ID, err)
	}
	return sharedEvents.DeadLetterRecord{
		ID:              id,
		OriginalTopic:   doc.OriginalTopic,
		OriginalKey:     doc.OriginalKey,
		OriginalMessage: doc.OriginalMessage,
		ErrorMessage:    doc.ErrorMessage,
		StackTrace:      doc.StackTrace,
		RetryCount:      doc.RetryCount,
		FailedAt:        doc.FailedAt.UTC(),
		Partition:       doc.Partition,
		Offset:          doc.Offset,
	}, nil
}

var _ eventlogDomain.DeadLetterStore = (*DeadLetterStoreMongoDB)(nil)
