package events

// Reconciliation is the outcome of checking proposed attendees against a
// requested capacity.
type Reconciliation struct {
	ValidAttendees []string
	// Adjusted is the number of seats left once ValidAttendees are seated.
	Adjusted int
}

// Reconcile keeps the candidates present in known, in first-seen order and
// without duplicates, and seats them against requested. Unknown ids are
// dropped silently. More valid attendees than seats fails with a
// *CapacityError.
func Reconcile(candidates []string, requested int, known map[string]struct{}) (Reconciliation, error) {
	valid := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}

	if len(valid) > requested {
		return Reconciliation{}, &CapacityError{Attendees: len(valid), Capacity: requested}
	}

	return Reconciliation{
		ValidAttendees: valid,
		Adjusted:       requested - len(valid),
	}, nil
}

// knownSet builds the lookup set Reconcile expects.
func knownSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
