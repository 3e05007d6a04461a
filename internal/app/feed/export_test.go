package feed

func (s *Store) SetTombstoneLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombLimit = n
}

func (s *Store) TombstoneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tombstones)
}

func (s *Store) TombstoneQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buriedIDs)
}
