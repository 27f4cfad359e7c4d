package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is the content projection read from MongoDB when rendering
// notifications about a post (preview text, author attribution).
type Post struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    string             `json:"user_id" bson:"user_id"`
	Content   string             `json:"content" bson:"content"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// Preview returns the first n runes of the post content for use in
// notification messages.
func (p *Post) Preview(n int) string {
	runes := []rune(p.Content)
	if len(runes) <= n {
		return p.Content
	}
	return string(runes[:n]) + "..."
}
