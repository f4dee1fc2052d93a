package routing

// LinkQuality is the read side of a MAC's per-neighbor ACK accounting.
// The routing layer only ever reads through it.
type LinkQuality interface {
	AcksReceived(neighborID uint64) float64
	AcksMissed(neighborID uint64) float64
}
