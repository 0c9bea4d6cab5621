package synchronizer

// KeyCount returns the number of lock entries currently tracked.
func (s *KeyedSynchronizer) KeyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
