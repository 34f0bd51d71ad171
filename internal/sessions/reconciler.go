package sessions

// Reconciler decides whether an incoming event continues an existing active
// session or starts a new one. It is a two-state machine per (website,
// visitor) pair: NEW (no active row) and CONTINUING (active row exists);
// expiry is handled by the sweep job, not here.
type Reconciler struct {
	store *Store
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store *Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile resolves which session id the event should carry downstream.
// When an active session exists its id wins and the freshly generated
// candidate is discarded, so every event of one ongoing visit shares one
// session id. When none exists the candidate becomes the visit's session id.
func (r *Reconciler) Reconcile(websiteID uint, visitorID, candidateID string) (sessionID string, existing bool, err error) {
	session, err := r.store.Active(websiteID, visitorID)
	if err != nil {
		return "", false, err
	}
	if session != nil {
		return session.SessionID, true, nil
	}
	return candidateID, false, nil
}
