package confidence

// State tracks confidence for one open review session.
type State struct {
	Resolved IssueSet
	Base     float64
	Current  float64
	Previous float64
}

// Update describes the effect of one evidence submission.
type Update struct {
	Newly []IssueKey
	From  float64
	To    float64
	Boost int
}

// Delta is the realised change in points after the ceiling.
func (u Update) Delta() int {
	return Points(u.To) - Points(u.From)
}

// NewState starts a session at the stored result confidence.
func NewState(base float64) State {
	return State{Base: base, Current: base, Previous: base}
}

// Tier returns the review tier of the current confidence.
func (s State) Tier() Tier {
	return ReviewTier(s.Current)
}

// Resolve marks keys as resolved and rescores. Keys already resolved
// contribute nothing; ok is false when no key was new.
func (s *State) Resolve(c *Catalog, keys []IssueKey) (Update, bool) {
	newly := s.Resolved.Missing(keys)
	var known []IssueKey
	for _, k := range newly {
		if _, exists := c.Get(k); exists {
			known = append(known, k)
		}
	}
	if len(known) == 0 {
		return Update{}, false
	}

	boost := c.Weight(known)
	for _, k := range known {
		s.Resolved.Add(k)
	}

	u := Update{Newly: known, From: s.Current, Boost: boost}
	s.Previous = s.Current
	s.Current = Apply(s.Current, boost)
	u.To = s.Current
	return u, true
}

// Unresolved lists catalog issues not yet resolved, in catalog order.
func (s State) Unresolved(c *Catalog) []IssueKey {
	return s.Resolved.Missing(c.Keys())
}
