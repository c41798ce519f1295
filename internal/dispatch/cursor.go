package dispatch

// RecipientSet hands out recipients in order, in non-overlapping chunks.
// The backing slice is never modified; a chunk once taken is never handed
// out again.
type RecipientSet struct {
	ids  []int64
	next int
}

// NewRecipientSet copies ids. Callers are expected to pass a deduplicated
// list.
func NewRecipientSet(ids []int64) *RecipientSet {
	return &RecipientSet{ids: append([]int64(nil), ids...)}
}

func (s *RecipientSet) Total() int     { return len(s.ids) }
func (s *RecipientSet) Remaining() int { return len(s.ids) - s.next }
func (s *RecipientSet) Empty() bool    { return s.next >= len(s.ids) }

// Take returns up to n recipients and advances past them. It returns nil
// once the set is drained or when n <= 0.
func (s *RecipientSet) Take(n int) []int64 {
	if n <= 0 || s.Empty() {
		return nil
	}
	end := s.next + n
	if end > len(s.ids) {
		end = len(s.ids)
	}
	chunk := s.ids[s.next:end:end]
	s.next = end
	return chunk
}
