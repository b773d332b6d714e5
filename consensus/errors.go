package consensus

import "github.com/pkg/errors"

// Sentinel errors surfaced by the leader and backup state machines.
// Anything not listed here is a silent rejection logged at debug level.
var (
	ErrWrongState          = errors.New("consensus: message not valid for current state")
	ErrUnknownSender       = errors.New("consensus: sender is not a committee member")
	ErrBadSignature        = errors.New("consensus: signature verification failed")
	ErrDuplicateSender     = errors.New("consensus: sender already contributed this round")
	ErrNotEnoughCommits    = errors.New("consensus: too few commits to proceed")
	ErrUnknownSubset       = errors.New("consensus: subset id out of range")
	ErrNotInSubset         = errors.New("consensus: sender is not a member of this subset")
	ErrChallengeMismatch   = errors.New("consensus: recomputed challenge does not match")
	ErrCollectiveSigFailed = errors.New("consensus: aggregated signature failed verification")
	ErrAllSubsetsExhausted = errors.New("consensus: every subset failed to reach quorum")
)
