package models

import "time"

// Movie is the locally cached copy of a catalog movie. Rows are written once,
// on the first save of the title by any user, and never updated afterwards.
type Movie struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Title        string    `json:"title"`
	PosterPath   *string   `json:"poster_path"`
	BackdropPath *string   `json:"backdrop_path"`
	ReleaseDate  string    `json:"release_date" gorm:"size:32"`
	Overview     string    `json:"overview"`
	VoteAverage  float64   `json:"vote_average"`
	MediaType    string    `json:"media_type" gorm:"size:16;default:movie"`
	CreatedAt    time.Time `json:"created_at"`
}

// Show is the locally cached copy of a catalog TV show.
type Show struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Name         string    `json:"name"`
	PosterPath   *string   `json:"poster_path"`
	BackdropPath *string   `json:"backdrop_path"`
	FirstAirDate string    `json:"first_air_date" gorm:"size:32"`
	Overview     string    `json:"overview"`
	VoteAverage  float64   `json:"vote_average"`
	MediaType    string    `json:"media_type" gorm:"size:16;default:tv"`
	CreatedAt    time.Time `json:"created_at"`
}

// CatalogPayload carries the display fields the caller already fetched from the
// catalog. It is only used to create a cache entry that does not exist yet.
type CatalogPayload struct {
	Title        string   `json:"title,omitempty" validate:"omitempty,max=500"`
	Name         string   `json:"name,omitempty" validate:"omitempty,max=500"`
	PosterPath   *string  `json:"poster_path,omitempty" validate:"omitempty,max=500"`
	BackdropPath *string  `json:"backdrop_path,omitempty" validate:"omitempty,max=500"`
	ReleaseDate  string   `json:"release_date,omitempty" validate:"omitempty,max=32"`
	FirstAirDate string   `json:"first_air_date,omitempty" validate:"omitempty,max=32"`
	Overview     string   `json:"overview,omitempty"`
	VoteAverage  *float64 `json:"vote_average,omitempty" validate:"omitempty,min=0,max=10"`
}

// ToMovie converts the payload into a movie cache row
func (p *CatalogPayload) ToMovie(id int64) *Movie {
	return &Movie{
		ID:           id,
		Title:        p.Title,
		PosterPath:   p.PosterPath,
		BackdropPath: p.BackdropPath,
		ReleaseDate:  p.ReleaseDate,
		Overview:     p.Overview,
		VoteAverage:  p.vote(),
		MediaType:    "movie",
	}
}

// ToShow converts the payload into a show cache row
func (p *CatalogPayload) ToShow(id int64) *Show {
	return &Show{
		ID:           id,
		Name:         p.Name,
		PosterPath:   p.PosterPath,
		BackdropPath: p.BackdropPath,
		FirstAirDate: p.FirstAirDate,
		Overview:     p.Overview,
		VoteAverage:  p.vote(),
		MediaType:    "tv",
	}
}

func (p *CatalogPayload) vote() float64 {
	if p.VoteAverage == nil {
		return 0
	}
	return *p.VoteAverage
}
