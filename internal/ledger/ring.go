package ledger

import "github.com/loopguard/loopguard/internal/model"

// ring is a fixed-capacity buffer of the most recent records for one job.
// Not safe for concurrent use; the ledger serializes access per job.
type ring struct {
	recs []model.ActionRecord
	cap  int
	warm bool
}

func newRing(capacity int) *ring {
	return &ring{cap: capacity}
}

func (r *ring) capacity() int {
	return r.cap
}

// reset replaces the buffer contents and marks the ring warm.
func (r *ring) reset(recs []model.ActionRecord) {
	if len(recs) > r.cap {
		recs = recs[len(recs)-r.cap:]
	}
	r.recs = append(r.recs[:0], recs...)
	r.warm = true
}

func (r *ring) push(rec model.ActionRecord) {
	r.recs = append(r.recs, rec)
	if len(r.recs) > r.cap {
		// Shift rather than reslice so the backing array stays bounded.
		copy(r.recs, r.recs[1:])
		r.recs = r.recs[:r.cap]
	}
}

// last returns up to n trailing records, step ascending, as a copy.
func (r *ring) last(n int) []model.ActionRecord {
	if n > len(r.recs) {
		n = len(r.recs)
	}
	if n == 0 {
		return nil
	}
	out := make([]model.ActionRecord, n)
	copy(out, r.recs[len(r.recs)-n:])
	return out
}

func (r *ring) setOutcome(step int64, outcome model.Outcome) {
	for i := len(r.recs) - 1; i >= 0; i-- {
		if r.recs[i].Step == step {
			r.recs[i].Outcome = outcome
			return
		}
	}
}
