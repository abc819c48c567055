package model

import "time"

// LeaderboardEntry is one row of the authoritative board ledger
type LeaderboardEntry struct {
	Address        string    `json:"address"`
	Name           string    `json:"name,omitempty"`
	TotalUSD       float64   `json:"total_usd"`
	Count          int       `json:"count"`
	Annotation     string    `json:"annotation,omitempty"`
	Link           string    `json:"link,omitempty"`
	FirstTributeAt time.Time `json:"first_tribute_at"`
	LastTributeAt  time.Time `json:"last_tribute_at"`
}

// RankDirection tags how an entry moved between two refreshes
type RankDirection string

const (
	RankNone RankDirection = "none"
	RankNew  RankDirection = "new"
	RankUp   RankDirection = "up"
	RankDown RankDirection = "down"
)

// RankChange is presentation metadata only; it never influences order
type RankChange struct {
	Direction RankDirection `json:"direction"`
	Places    int           `json:"places,omitempty"`
}

// RankedEntry is a board row with its assigned dense rank
type RankedEntry struct {
	LeaderboardEntry
	Rank   int        `json:"rank"`
	Change RankChange `json:"change"`
}

// TributeRequest is the API request body for submitting a tribute
type TributeRequest struct {
	Asset      string      `json:"asset" binding:"required"`
	Amount     float64     `json:"amount" binding:"required"`
	Mode       string      `json:"mode"`
	Name       string      `json:"name"`
	Annotation *Annotation `json:"annotation"`
}
