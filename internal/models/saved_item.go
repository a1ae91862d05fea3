package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// StoreKind names one of the two saved-item stores
type StoreKind string

const (
	StoreBookmarks StoreKind = "bookmarks"
	StoreFavorites StoreKind = "favorites"
)

// StoreKinds lists every saved-item store
var StoreKinds = []StoreKind{StoreBookmarks, StoreFavorites}

// Table returns the table backing the store
func (s StoreKind) Table() string { return string(s) }

// Valid reports whether s is a known store
func (s StoreKind) Valid() bool { return s == StoreBookmarks || s == StoreFavorites }

// Noun is the singular, capitalised name used in response messages
func (s StoreKind) Noun() string {
	if s == StoreFavorites {
		return "Favorite"
	}
	return "Bookmark"
}

// SavedItem is a row of the bookmarks or favorites table. Exactly one of
// MovieID and ShowID is set. The table is chosen by the caller, so the struct
// carries no table name of its own.
type SavedItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"size:128;not null;index"`
	MovieID   *int64    `json:"movie_id,omitempty"`
	ShowID    *int64    `json:"show_id,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// NewSavedItem builds an unsaved row for the given user and title
func NewSavedItem(userID string, ref ItemRef) *SavedItem {
	item := &SavedItem{UserID: userID}
	id := ref.ID
	if ref.Kind == MediaKindShow {
		item.ShowID = &id
	} else {
		item.MovieID = &id
	}
	return item
}

// Ref returns the title the row references
func (s *SavedItem) Ref() ItemRef {
	if s.ShowID != nil {
		return ShowRef(*s.ShowID)
	}
	if s.MovieID != nil {
		return MovieRef(*s.MovieID)
	}
	return ItemRef{}
}

// SavedItemView is a saved item joined with its cached catalog entry, in the
// shape returned by GET /api/user/{bookmarks,favorites}.
type SavedItemView struct {
	ID           uint      `json:"id"`
	UserID       string    `json:"user_id"`
	MovieID      *int64    `json:"movie_id,omitempty"`
	MovieDetails *Movie    `json:"movie_details,omitempty"`
	ShowID       *int64    `json:"show_id,omitempty"`
	ShowDetails  *Show     `json:"show_details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Library is a user's saved items of one store, partitioned by media kind.
type Library struct {
	Movies []SavedItemView `json:"movies"`
	Shows  []SavedItemView `json:"shows"`
}

// Items flattens the library, movies first, as the HTTP API returns it
func (l Library) Items() []SavedItemView {
	items := make([]SavedItemView, 0, len(l.Movies)+len(l.Shows))
	items = append(items, l.Movies...)
	return append(items, l.Shows...)
}

// Contains reports whether the library holds the given title
func (l Library) Contains(ref ItemRef) bool {
	list, id := l.Movies, func(v SavedItemView) *int64 { return v.MovieID }
	if ref.Kind == MediaKindShow {
		list, id = l.Shows, func(v SavedItemView) *int64 { return v.ShowID }
	}
	for _, v := range list {
		if p := id(v); p != nil && *p == ref.ID {
			return true
		}
	}
	return false
}

// LibraryStatus tells whether a single title is bookmarked and/or favorited
type LibraryStatus struct {
	Bookmarked bool `json:"bookmarked"`
	Favorited  bool `json:"favorited"`
}

// FlexibleID decodes a catalog id sent either as a JSON number or as a numeric string.
type FlexibleID int64

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", s)
		}
		*f = FlexibleID(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexibleID(v)
	return nil
}

// SaveItemRequest is the body of POST /api/user/{bookmarks,favorites}
type SaveItemRequest struct {
	MovieID   *FlexibleID     `json:"movieId,omitempty"`
	ShowID    *FlexibleID     `json:"showId,omitempty"`
	MovieData *CatalogPayload `json:"movieData,omitempty" validate:"omitempty"`
	ShowData  *CatalogPayload `json:"showData,omitempty" validate:"omitempty"`
}

// Ref validates the id pair and returns the referenced title
func (r *SaveItemRequest) Ref() (ItemRef, error) {
	return NewItemRef(r.MovieID.int64Ptr(), r.ShowID.int64Ptr())
}

// Payload returns the display fields matching the referenced kind, if any.
// A movieData sent alongside a showId (or the reverse) is ignored.
func (r *SaveItemRequest) Payload(kind MediaKind) *CatalogPayload {
	if kind == MediaKindShow {
		return r.ShowData
	}
	return r.MovieData
}

func (f *FlexibleID) int64Ptr() *int64 {
	if f == nil {
		return nil
	}
	v := int64(*f)
	return &v
}
