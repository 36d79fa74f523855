package domain

// Reconcile compares a prepared batch against the store tail and returns
// the suffix of genuinely new records, in batch order. It is a pure
// function of its inputs; the caller appends the result exactly once.
//
// One of four states applies:
//
//   - empty store (first-ever sync): the whole batch is new
//   - store behind the batch's time window: the whole batch is new
//   - overlap: the store's latest timestamp matches a batch record; the
//     records strictly after the last such match are new
//   - current: the store's latest equals the batch's latest; nothing is new
//
// Anything else (the store claims a timestamp newer than the batch, or
// one falling in a gap with no exact match) returns a
// ReconciliationError. An empty batch reconciles to nothing regardless of
// tail state.
func Reconcile(batch []Record, tail StoreTail) ([]Record, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	latest, ok := tail.Latest()
	if !ok {
		return batch, nil
	}
	if latest.Before(batch[0].Time) {
		return batch, nil
	}
	if latest.Equal(batch[len(batch)-1].Time) {
		return nil, nil
	}

	// Take the suffix after the *last* record matching the store's latest
	// timestamp, so a duplicate timestamp inside the batch cannot be
	// written twice.
	for i := len(batch) - 1; i >= 0; i-- {
		if batch[i].Time.Equal(latest) {
			return batch[i+1:], nil
		}
	}

	return nil, &ReconciliationError{
		StoreLatest:   latest,
		BatchEarliest: batch[0].Time,
		BatchLatest:   batch[len(batch)-1].Time,
	}
}
