package shard

// Width is the number of consecutive key magnitudes that share a shard.
// Every process operating on the same store must agree on it.
const Width = 1000

// Route maps a pool key to the shard that owns it: floor(|key| / Width).
// Keys k and -k always land on the same shard.
func Route(key int64) int64 {
	// Work on the unsigned magnitude so math.MinInt64 does not overflow.
	mag := uint64(key)
	if key < 0 {
		mag = uint64(-(key + 1)) + 1
	}
	return int64(mag / Width)
}

// OwnsKey reports whether shard id is responsible for key.
func OwnsKey(id, key int64) bool {
	return Route(key) == id
}
