package orchestrator

import (
	"sort"

	"github.com/adminlove520/EasyJob/internal/models"
)

// Reconciliation is the derived view of one resume's session list: newest
// first, duplicate actives flagged, stale "active" records that actually
// finished detected. It is a pure computation; callers decide which fixes
// to apply.
type Reconciliation struct {
	// Sessions sorted by created_at descending with PossibleDuplicate set
	// on every active session that is not the newest active one.
	Sessions []models.InterviewSession

	// NewestActive is the authoritative running session, nil when none
	// remains after stale-finished records are discounted.
	NewestActive *models.InterviewSession

	// StaleFinished are sessions whose stored status still says active even
	// though every preset question has an answer; they should be finalized
	// server-side without user interruption.
	StaleFinished []*models.InterviewSession

	// Duplicates are active sessions older than the newest active one; the
	// authoritative fix is to finalize them on the next resolving pass.
	Duplicates []*models.InterviewSession
}

// Reconcile applies the duplicate-session policy to a session list. It is
// best-effort and eventually consistent: brief windows with two active
// sessions are tolerated, and the next orchestration cycle converges on one.
func Reconcile(sessions []models.InterviewSession) Reconciliation {
	out := Reconciliation{Sessions: make([]models.InterviewSession, len(sessions))}
	copy(out.Sessions, sessions)

	sort.SliceStable(out.Sessions, func(i, j int) bool {
		return out.Sessions[i].CreatedAt.After(out.Sessions[j].CreatedAt)
	})

	seenActive := false
	for i := range out.Sessions {
		s := &out.Sessions[i]
		if !s.Status.Running() {
			continue
		}
		if seenActive {
			s.PossibleDuplicate = true
			out.Duplicates = append(out.Duplicates, s)
		}
		seenActive = true

		if s.Exhausted() {
			out.StaleFinished = append(out.StaleFinished, s)
			continue
		}
		if out.NewestActive == nil && !s.PossibleDuplicate {
			out.NewestActive = s
		}
	}
	return out
}
