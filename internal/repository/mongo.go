package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/taskguard/taskguard-go/internal/model"
)

const (
	usersCollection = "users"
	tasksCollection = "tasks"
)

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection
}

// NewMongoStore connects to uri, pings the server and makes sure the
// indexes the store relies on exist.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("repository: mongo connect: %w", err)
	}

	s := &MongoStore{
		client: client,
		users:  client.Database(database).Collection(usersCollection),
		tasks:  client.Database(database).Collection(tasksCollection),
	}

	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("repository: users email index: %w", err)
	}

	_, err = s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("repository: tasks owner index: %w", err)
	}
	return nil
}

// Ping checks the connection with a short timeout.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("repository: mongo ping: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func byID(id model.ID) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func (s *MongoStore) InsertUser(ctx context.Context, user *model.User) error {
	if user.ID.IsZero() {
		user.ID = model.NewID()
	}
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *MongoStore) FindUserByID(ctx context.Context, id model.ID) (*model.User, error) {
	return s.findUser(ctx, byID(id))
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.D) (*model.User, error) {
	user := &model.User{}
	if err := s.users.FindOne(ctx, filter).Decode(user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]model.User, error) {
	cur, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0)
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, id model.ID, update model.UserUpdate) (int64, error) {
	res, err := s.users.UpdateOne(ctx, byID(id), userUpdateDoc(update))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, id model.ID) (int64, error) {
	res, err := s.users.DeleteOne(ctx, byID(id))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// userUpdateDoc builds the $set/$inc update for a UserUpdate.
func userUpdateDoc(u model.UserUpdate) bson.D {
	set := bson.D{{Key: "updated_at", Value: u.UpdatedAt}}
	if u.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *u.Name})
	}
	if u.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *u.Email})
	}
	if u.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *u.PasswordHash})
	}
	if u.Role != nil {
		set = append(set, bson.E{Key: "role", Value: string(*u.Role)})
	}
	if u.Active != nil {
		set = append(set, bson.E{Key: "isActived", Value: *u.Active})
	}

	doc := bson.D{{Key: "$set", Value: set}}
	if u.BumpTokenVersion {
		doc = append(doc, bson.E{Key: "$inc", Value: bson.D{{Key: "token_version", Value: int64(1)}}})
	}
	return doc
}

func (s *MongoStore) InsertTask(ctx context.Context, task *model.Task) error {
	if task.ID.IsZero() {
		task.ID = model.NewID()
	}
	_, err := s.tasks.InsertOne(ctx, task)
	return err
}

func (s *MongoStore) FindTaskByID(ctx context.Context, id model.ID) (*model.Task, error) {
	task := &model.Task{}
	if err := s.tasks.FindOne(ctx, byID(id)).Decode(task); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *MongoStore) ListTasks(ctx context.Context, owner *model.ID) ([]model.Task, error) {
	cur, err := s.tasks.Find(ctx, taskListFilter(owner), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0)
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func taskListFilter(owner *model.ID) bson.D {
	if owner == nil {
		return bson.D{}
	}
	return bson.D{{Key: "user_id", Value: *owner}}
}

func (s *MongoStore) UpdateTask(ctx context.Context, id model.ID, update model.TaskUpdate) (int64, error) {
	res, err := s.tasks.UpdateOne(ctx, byID(id), taskUpdateDoc(update))
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (s *MongoStore) DeleteTask(ctx context.Context, id model.ID) (int64, error) {
	res, err := s.tasks.DeleteOne(ctx, byID(id))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// taskUpdateDoc builds the $set update for a TaskUpdate.
func taskUpdateDoc(u model.TaskUpdate) bson.D {
	set := bson.D{{Key: "updated_at", Value: u.UpdatedAt}}
	if u.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *u.Title})
	}
	if u.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *u.Description})
	}
	if u.UserID != nil {
		set = append(set, bson.E{Key: "user_id", Value: *u.UserID})
	}
	if u.Completed != nil {
		set = append(set, bson.E{Key: "completed", Value: *u.Completed})
	}
	return bson.D{{Key: "$set", Value: set}}
}
