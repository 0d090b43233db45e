package domain

// Notes attached by Classify. Downstream reports surface these verbatim.
const (
	noteNoCalculations = "no calculations available"
	noteNoDistance     = "no actual distance available"
	noteInsideBoundary = "tank location is inside the boundary polygon"
)

// requiredDistance selects the governing required separation for a tank.
// Dike-priority rule: when the tank has a dike and a diked-scenario value is
// present, the diked values govern; otherwise the unprotected values do. If
// the matching scenario has no figures at all but another does, whatever is
// populated governs, so the verdict only becomes PENDING when all four
// variants are null.
func requiredDistance(r RequiredDistances, hasDike bool) *float64 {
	diked := maxOf(r.ASDPNPD, r.ASDBNPD)
	unprotected := maxOf(r.ASDPPU, r.ASDBPU)

	if hasDike && diked != nil {
		return diked
	}
	if unprotected != nil {
		return unprotected
	}
	return diked
}

func maxOf(values ...*float64) *float64 {
	var max *float64
	for _, v := range values {
		if v == nil {
			continue
		}
		if max == nil || *v > *max {
			value := *v
			max = &value
		}
	}
	return max
}

// Classify derives a compliance verdict from a measured boundary distance,
// the required-distance set, and the dike flag. It is a pure function:
// identical inputs always produce an identical Compliance, which is what
// makes re-merges idempotent.
//
//	required resolvable? | distance present? | status
//	no (all 4 null)      | any               | PENDING
//	yes                  | no                | REVIEW
//	yes                  | >= required       | COMPLIANT  (margin >= 0)
//	yes                  | <  required       | NON_COMPLIANT (margin < 0)
//
// A tank located inside the boundary polygon gets that fact appended to the
// notes regardless of the numeric outcome.
func Classify(distanceFt *float64, required RequiredDistances, hasDike bool, location PointLocation) Compliance {
	var c Compliance

	switch governing := requiredDistance(required, hasDike); {
	case governing == nil:
		c.Status = StatusPending
		c.Notes = append(c.Notes, noteNoCalculations)
	case distanceFt == nil:
		c.Status = StatusReview
		c.Notes = append(c.Notes, noteNoDistance)
	default:
		margin := *distanceFt - *governing
		c.MarginFt = &margin
		if margin >= 0 {
			c.Status = StatusCompliant
		} else {
			c.Status = StatusNonCompliant
		}
	}

	if location == LocationInside {
		c.Notes = append(c.Notes, noteInsideBoundary)
	}
	return c
}
