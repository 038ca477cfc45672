package worker

// ResolveWorker resolves which worker partition owns a subscription's
// attempts: a subscription-level dedicated worker wins over the owning
// organization's default worker. ok is false when neither is set; such
// attempts are never claimable by any partitioned worker, which is a
// configuration inconsistency for the management layer to repair, not an
// engine error.
//
// The claim query applies the same rule in SQL
// (COALESCE(s.dedicated_worker, o.default_worker)); this function exists so
// callers can check and log assignment gaps without a round-trip.
func ResolveWorker(dedicated, orgDefault string) (string, bool) {
	if dedicated != "" {
		return dedicated, true
	}
	if orgDefault != "" {
		return orgDefault, true
	}
	return "", false
}
