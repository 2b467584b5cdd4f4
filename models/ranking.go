package models

// GenreCount is one row of a genre frequency ranking.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}
