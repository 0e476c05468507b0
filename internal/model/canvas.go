package model

// Point is a node position on the canvas.
type Point struct {
	X float64
	Y float64
}

// PositionSnapshot captures the position of every node on the canvas at one
// moment, keyed by node ID. Snapshots are whole captures, not diffs.
type PositionSnapshot map[string]Point

// Clone returns an independent copy of the snapshot.
func (s PositionSnapshot) Clone() PositionSnapshot {
	if s == nil {
		return nil
	}
	c := make(PositionSnapshot, len(s))
	for id, p := range s {
		c[id] = p
	}
	return c
}
