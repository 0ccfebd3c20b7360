package model

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ID is the canonical identifier for users and tasks. Path parameters and
// request fields are converted once with ParseID; ownership checks compare
// ID values, never their string form.
type ID = bson.ObjectID

var ErrInvalidID = errors.New("invalid id")

// NewID returns a fresh identifier.
func NewID() ID {
	return bson.NewObjectID()
}

// ParseID converts the 24 character hex form of an ID.
func ParseID(s string) (ID, error) {
	id, err := bson.ObjectIDFromHex(s)
	if err != nil || id.IsZero() {
		return ID{}, ErrInvalidID
	}
	return id, nil
}
