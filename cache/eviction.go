package cache

import (
	"github.com/saiset-co/sai-docs/types"
)

// enforceLimitsLocked applies the capacity policy after an insert: the entry
// count limit first, then the byte limit. Victims are least-recently-used by
// LastAccessedAt, ties broken by oldest CreatedAt. The just-inserted entry is
// a legal victim when it alone exceeds MaxTotalBytes.
func (s *store) enforceLimitsLocked() []*types.CacheEntry {
	var evicted []*types.CacheEntry

	for s.limits.MaxEntries > 0 && len(s.entries) > s.limits.MaxEntries {
		victim := s.victimLocked()
		if victim == nil {
			break
		}
		evicted = append(evicted, victim)
		s.removeLocked(victim.Key)
	}

	for s.limits.MaxTotalBytes > 0 && s.totalBytes > s.limits.MaxTotalBytes {
		victim := s.victimLocked()
		if victim == nil {
			break
		}
		evicted = append(evicted, victim)
		s.removeLocked(victim.Key)
	}

	return evicted
}

func (s *store) victimLocked() *types.CacheEntry {
	var victim *types.CacheEntry
	for _, entry := range s.entries {
		if victim == nil {
			victim = entry
			continue
		}
		if entry.LastAccessedAt.Before(victim.LastAccessedAt) {
			victim = entry
			continue
		}
		if entry.LastAccessedAt.Equal(victim.LastAccessedAt) && entry.CreatedAt.Before(victim.CreatedAt) {
			victim = entry
		}
	}
	return victim
}
