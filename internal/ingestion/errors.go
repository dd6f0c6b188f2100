package ingestion

import "errors"

// ErrAlreadyExists is returned by Ingest when the (wallet, signature) pair
// was already handled. Duplicate deliveries are routine: feeds redeliver,
// reconciliation re-fetches, and backfills overlap live ingestion. Callers
// treat it as success.
var ErrAlreadyExists = errors.New("transaction already ingested")
