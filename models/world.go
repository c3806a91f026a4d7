package models

// Coord is a grid coordinate. Y grows downwards, rows are indexed by Y.
type Coord struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Rect is an inclusive rectangle on the grid.
type Rect struct {
	TopLeft     Coord `json:"top_left"`
	BottomRight Coord `json:"bottom_right"`
}

// Contains reports whether c lies inside r, edges included.
func (r Rect) Contains(c Coord) bool {
	return r.TopLeft.X <= c.X && c.X <= r.BottomRight.X &&
		r.TopLeft.Y <= c.Y && c.Y <= r.BottomRight.Y
}

// RoomLayout describes the walkable area of a soundscape room.
type RoomLayout struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Entry  Coord  `json:"entry"`
}

// InBounds reports whether c is inside the room.
func (l RoomLayout) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < l.Width && c.Y >= 0 && c.Y < l.Height
}
