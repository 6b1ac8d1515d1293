package orders

// Aggregate counts the orders in s by status in a single scan. It never
// mutates the store; an empty store yields all-zero counts.
func Aggregate(s *Store) Statistics {
	var st Statistics
	s.each(func(o Order) {
		st.Total++
		switch o.Status {
		case StatusOpen:
			st.Open++
		case StatusAccepted:
			st.Accepted++
		case StatusInProgress:
			st.InProgress++
		case StatusCompleted:
			st.Completed++
		case StatusDeclined:
			st.Declined++
		case StatusCancelled:
			st.Cancelled++
		}
	})
	return st
}
