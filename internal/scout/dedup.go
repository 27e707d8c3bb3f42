package scout

// ForwardKey identifies a forwarded message for duplicate suppression.
type ForwardKey struct {
	SourceID  int64
	MessageID int
}

// DefaultDedupCapacity bounds the memory used for duplicate tracking.
const DefaultDedupCapacity = 10000

// DedupSet is a bounded set of ForwardKey. When the capacity is exceeded it
// compacts down to roughly half, keeping the most recently inserted keys.
// Retention is best-effort, not LRU-exact.
type DedupSet struct {
	capacity int
	keys     map[ForwardKey]struct{}
	order    []ForwardKey
}

// NewDedupSet creates a set bounded to capacity keys.
// Non-positive capacity falls back to DefaultDedupCapacity.
func NewDedupSet(capacity int) *DedupSet {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupSet{
		capacity: capacity,
		keys:     make(map[ForwardKey]struct{}),
	}
}

// Seen reports whether key was remembered and not since evicted.
func (d *DedupSet) Seen(key ForwardKey) bool {
	_, ok := d.keys[key]
	return ok
}

// Remember inserts key, compacting first if the set is full. The key being
// inserted always survives the compaction.
func (d *DedupSet) Remember(key ForwardKey) {
	if _, ok := d.keys[key]; ok {
		return
	}

	if len(d.order) >= d.capacity {
		d.compact()
	}

	d.keys[key] = struct{}{}
	d.order = append(d.order, key)
}

// Len returns the number of tracked keys.
func (d *DedupSet) Len() int {
	return len(d.keys)
}

// compact drops the older half of the insertion order.
func (d *DedupSet) compact() {
	keep := d.order[len(d.order)/2:]

	d.keys = make(map[ForwardKey]struct{}, len(keep))
	d.order = make([]ForwardKey, 0, d.capacity)
	for _, k := range keep {
		d.keys[k] = struct{}{}
		d.order = append(d.order, k)
	}
}
