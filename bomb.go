package main

import "time"

// Bomb is a placed charge waiting on its fuse
type Bomb struct {
	X, Y     int
	PlacedAt time.Time
}

// IsExpired reports whether more than fuse has elapsed since placement
func (b *Bomb) IsExpired(now time.Time, fuse time.Duration) bool {
	return now.Sub(b.PlacedAt) > fuse
}

func (b *Bomb) ToState() BombState {
	return BombState{X: b.X, Y: b.Y}
}
