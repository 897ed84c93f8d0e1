package domain

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a fresh 24 character hex object id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID reports whether the value is a syntactically valid object id.
func IsValidID(id string) bool {
	return primitive.IsValidObjectID(strings.TrimSpace(id))
}
