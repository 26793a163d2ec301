package domain

// EligibleSlots returns the slots the grade year may occupy, regardless of
// their remaining capacity.
func EligibleSlots(slots []Slot, gradeYear *int) []Slot {
	var eligible []Slot
	for _, s := range slots {
		if s.AcceptsGradeYear(gradeYear) {
			eligible = append(eligible, s)
		}
	}
	return eligible
}

// SelectSlot picks the eligible slot with the most remaining capacity,
// breaking ties on the lowest id. It returns nil when no eligible slot has
// room left.
func SelectSlot(slots []Slot, gradeYear *int) *Slot {
	var best *Slot
	for i := range slots {
		s := &slots[i]
		if s.RemainingCapacity <= 0 || !s.AcceptsGradeYear(gradeYear) {
			continue
		}
		if best == nil ||
			s.RemainingCapacity > best.RemainingCapacity ||
			(s.RemainingCapacity == best.RemainingCapacity && s.ID.String() < best.ID.String()) {
			best = s
		}
	}
	return best
}
