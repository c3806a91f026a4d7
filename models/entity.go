package models

import "time"

type Player struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OccupantID implements the tile tracker's occupant contract.
func (p *Player) OccupantID() string { return p.ID }

// CurrentPosition returns the grid coordinate the player stands on.
func (p *Player) CurrentPosition() Coord { return Coord{X: p.X, Y: p.Y} }

// Occupant is anything whose position the tile tracker can follow.
type Occupant interface {
	OccupantID() string
	CurrentPosition() Coord
}
