// Package mapping links message IDs across the two sides of the bridge
// so replies can be threaded instead of quoted. Entries are short-lived;
// a missing map only degrades reply linkage, it is never an error.
package mapping

import "strconv"

// TTLSeconds is how long a requester's map survives after its last write.
const TTLSeconds = 7 * 24 * 60 * 60

// Map holds source-message-ID → copy-message-ID pairs for one requester.
// Keys are stringified IDs because the stored JSON object requires string
// keys; both directions of the bridge write into the same map.
type Map map[string]int64

// Set records that source was copied as copy.
func (m Map) Set(source, copy int64) {
	m[strconv.FormatInt(source, 10)] = copy
}

// Resolve finds the counterpart of id on the other side. The forward
// lookup hits entries keyed by id; the reverse scan covers replies to
// copies recorded from the opposite direction.
func (m Map) Resolve(id int64) (int64, bool) {
	if v, ok := m[strconv.FormatInt(id, 10)]; ok {
		return v, true
	}
	for k, v := range m {
		if v != id {
			continue
		}
		src, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		return src, true
	}
	return 0, false
}
