package models

import (
	"errors"
	"fmt"
	"strconv"
)

// MediaKind identifies which catalog a title belongs to
type MediaKind string

const (
	MediaKindMovie MediaKind = "movie"
	MediaKindShow  MediaKind = "show"
)

// Column returns the saved-item column that references this kind of title
func (k MediaKind) Column() string {
	if k == MediaKindShow {
		return "show_id"
	}
	return "movie_id"
}

// Label is the user-facing noun used in response messages
func (k MediaKind) Label() string {
	if k == MediaKindShow {
		return "Show"
	}
	return "Movie"
}

// ItemRef references exactly one catalog title: a movie or a show.
type ItemRef struct {
	Kind MediaKind `json:"kind"`
	ID   int64     `json:"id"`
}

// MovieRef builds a reference to a movie
func MovieRef(id int64) ItemRef { return ItemRef{Kind: MediaKindMovie, ID: id} }

// ShowRef builds a reference to a show
func ShowRef(id int64) ItemRef { return ItemRef{Kind: MediaKindShow, ID: id} }

// ErrInvalidItemRef is returned when a request names neither or both kinds of title.
var ErrInvalidItemRef = errors.New("Movie ID or Show ID is required")

// NewItemRef builds a reference from the two optional ids of an HTTP request.
// Exactly one of movieID and showID must be set and positive.
func NewItemRef(movieID, showID *int64) (ItemRef, error) {
	switch {
	case movieID != nil && showID != nil:
		return ItemRef{}, fmt.Errorf("%w: only one of movieId and showId may be set", ErrInvalidItemRef)
	case movieID != nil:
		return MovieRef(*movieID).validate()
	case showID != nil:
		return ShowRef(*showID).validate()
	default:
		return ItemRef{}, ErrInvalidItemRef
	}
}

// ParseItemRef is NewItemRef for string query parameters. Empty strings count as absent.
func ParseItemRef(movieID, showID string) (ItemRef, error) {
	parse := func(name, raw string) (*int64, error) {
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer", ErrInvalidItemRef, name)
		}
		return &v, nil
	}
	m, err := parse("movieId", movieID)
	if err != nil {
		return ItemRef{}, err
	}
	s, err := parse("showId", showID)
	if err != nil {
		return ItemRef{}, err
	}
	return NewItemRef(m, s)
}

// Valid reports whether the reference names a known kind and a positive id
func (r ItemRef) Valid() bool {
	return (r.Kind == MediaKindMovie || r.Kind == MediaKindShow) && r.ID > 0
}

func (r ItemRef) validate() (ItemRef, error) {
	if !r.Valid() {
		return ItemRef{}, fmt.Errorf("%w: id must be positive", ErrInvalidItemRef)
	}
	return r, nil
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}
