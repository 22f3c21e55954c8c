package model

import "time"

// Post is a text post written by a user. Items can be attached to it.
//
// UserID records the owner; only the owner may delete the post or attach
// items to it. User and Items are populated by the repository on reads that
// include them (list and detail) and are nil/empty otherwise.
type Post struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	UserID     int64     `json:"userId"`
	LikesCount int       `json:"likesCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	User *User `json:"user,omitempty"`
	// No omitempty: the frontend always gets an items array, empty or not.
	Items []Item `json:"items"`
}

// Item is a marketplace item attached to a post.
//
// The fields mirror what the item-search provider returns; RakutenItemID is
// the provider's identifier so the frontend can link back to the listing.
// UserID duplicates the post owner at attach time and is the field the
// ownership check on delete runs against.
type Item struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Price         int64     `json:"price"`
	ImageURL      string    `json:"imageUrl"`
	RakutenItemID string    `json:"rakutenItemId"`
	PostID        int64     `json:"postId"`
	UserID        int64     `json:"userId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SearchItem is one result from the external item-search provider.
// It is never persisted — the client picks a result and POSTs it back as an
// Item to attach.
type SearchItem struct {
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	ImageURL      string `json:"imageUrl"`
	RakutenItemID string `json:"rakutenItemId"`
}
