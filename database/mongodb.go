package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"doc-collab/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	messagesCollection = "messages"
	usersCollection    = "users"
)

type messageDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	DocumentID string             `bson:"documentId"`
	UserID     string             `bson:"userId"`
	Content    string             `bson:"content"`
	CreatedAt  time.Time          `bson:"createdAt"`
}

type userDocument struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	Name  string             `bson:"name"`
	Email string             `bson:"email"`
	Image string             `bson:"image,omitempty"`
	Role  string             `bson:"role,omitempty"`
}

// MongoStore keeps messages and users in MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongoDB opens a client, verifies it with a ping and makes sure the
// message indexes exist.
func ConnectMongoDB(ctx context.Context, uri, name string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err = client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	log.Println("Connected to MongoDB successfully!")

	store := &MongoStore{client: client, db: client.Database(name)}
	if err := store.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// EnsureIndexes creates the compound index used by history reads.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
	}
	if _, err := s.db.Collection(messagesCollection).Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	return nil
}

// CreateMessage inserts a message. MongoDB keeps millisecond precision, so the
// timestamp is truncated before the write to return exactly what was stored.
func (s *MongoStore) CreateMessage(ctx context.Context, documentID, userID, content string) (*models.Message, error) {
	doc := messageDocument{
		DocumentID: documentID,
		UserID:     userID,
		Content:    content,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}

	result, err := s.db.Collection(messagesCollection).InsertOne(ctx, doc)
	if err != nil {
		log.Printf("[store] Error inserting message: %v", err)
		return nil, err
	}
	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	doc.ID = id
	return doc.toModel(), nil
}

// ListMessages returns the latest limit messages of a document, oldest first.
func (s *MongoStore) ListMessages(ctx context.Context, documentID string, limit int) ([]models.Message, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := s.db.Collection(messagesCollection).Find(ctx, bson.M{"documentId": documentID}, findOptions)
	if err != nil {
		log.Printf("[store] Error finding messages for document %s: %v", documentID, err)
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err = cursor.All(ctx, &docs); err != nil {
		log.Printf("[store] Error decoding messages for document %s: %v", documentID, err)
		return nil, err
	}

	messages := make([]models.Message, len(docs))
	for i, doc := range docs {
		messages[len(docs)-1-i] = *doc.toModel()
	}
	return messages, nil
}

// GetUserByID looks a user up by hex ObjectID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	var doc userDocument
	err = s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &models.User{ID: doc.ID.Hex(), Name: doc.Name, Email: doc.Email, Image: doc.Image, Role: doc.Role}, nil
}

// InsertUser adds a user record and returns its hex ID. Accounts are normally
// owned by the application's user service; this exists for seeding.
func (s *MongoStore) InsertUser(ctx context.Context, user models.User) (string, error) {
	doc := userDocument{Name: user.Name, Email: user.Email, Image: user.Image, Role: user.Role}
	result, err := s.db.Collection(usersCollection).InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	return id.Hex(), nil
}

// Ping reports whether the primary is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Disconnect closes the client.
func (s *MongoStore) Disconnect(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		log.Printf("Error disconnecting from MongoDB: %v", err)
		return err
	}
	log.Println("Disconnected from MongoDB.")
	return nil
}

func (d messageDocument) toModel() *models.Message {
	return &models.Message{
		ID:         d.ID.Hex(),
		DocumentID: d.DocumentID,
		UserID:     d.UserID,
		Content:    d.Content,
		CreatedAt:  d.CreatedAt,
	}
}
