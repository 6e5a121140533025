package audit

// Correlation is a read-only debugging view over one decision's footprint
// in the chain: the seq range its entries span and the event kinds seen.
// It is never consulted to gate a transition — the chain's entries remain
// the only authority.
type Correlation struct {
	DecisionID string
	Found      bool
	FirstSeq   uint64
	LastSeq    uint64
	EventKinds []EventKind
}

// Correlate scans entries for every event carrying decisionID in its
// payload and reports the seq range and kinds observed, in chain order.
func Correlate(entries []AuditEntry, decisionID string) Correlation {
	c := Correlation{DecisionID: decisionID}
	for _, e := range entries {
		if kvGet(e.Payload, "decision_id") != decisionID {
			continue
		}
		if !c.Found {
			c.FirstSeq = e.Seq
			c.Found = true
		}
		c.LastSeq = e.Seq
		c.EventKinds = append(c.EventKinds, e.EventKind)
	}
	return c
}

// ObservationsForHypothesis returns, in chain order, the observation ids
// recorded against hypothesisID.
func ObservationsForHypothesis(entries []AuditEntry, hypothesisID string) []string {
	var out []string
	for _, e := range entries {
		if e.EventKind != EventObservationRecorded {
			continue
		}
		if kvGet(e.Payload, "hypothesis_id") != hypothesisID {
			continue
		}
		if id := kvGet(e.Payload, "observation_id"); id != "" {
			out = append(out, id)
		}
	}
	return out
}
