package consensus

// State is the overall state of a leader or backup instance. Both
// roles share the same enumeration; not every state is reachable from
// every role (a backup never emits CHALLENGE, for instance, but the
// label on its local state machine is exactly the same word).
type State int

const (
	Initial State = iota
	AnnounceDone
	ChallengeDone
	CollectiveSigDone
	FinalChallengeDone
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case AnnounceDone:
		return "ANNOUNCE_DONE"
	case ChallengeDone:
		return "CHALLENGE_DONE"
	case CollectiveSigDone:
		return "COLLECTIVESIG_DONE"
	case FinalChallengeDone:
		return "FINALCHALLENGE_DONE"
	case Done:
		return "DONE"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SubsetState is the per-subset analogue of State, tracked
// independently for each racing subset on the leader.
type SubsetState int

const (
	SubsetAnnounceDone SubsetState = iota
	SubsetChallengeDone
	SubsetCollectiveSigDone
	SubsetFinalChallengeDone
	SubsetDone
	SubsetError
)

func (s SubsetState) String() string {
	switch s {
	case SubsetAnnounceDone:
		return "ANNOUNCE_DONE"
	case SubsetChallengeDone:
		return "CHALLENGE_DONE"
	case SubsetCollectiveSigDone:
		return "COLLECTIVESIG_DONE"
	case SubsetFinalChallengeDone:
		return "FINALCHALLENGE_DONE"
	case SubsetDone:
		return "DONE"
	case SubsetError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// CommitProcessingState guards the commit-window boundary on the
// leader: it is read and written under the main instance mutex, both by
// the commit timer's callback (which closes the window itself) and on
// every inbound COMMIT.
type CommitProcessingState int

const (
	AcceptingCommits CommitProcessingState = iota
	CommitTimerExpired
	CommitListsGenerated
)

func (s CommitProcessingState) String() string {
	switch s {
	case AcceptingCommits:
		return "ACCEPTING_COMMITS"
	case CommitTimerExpired:
		return "COMMIT_TIMER_EXPIRED"
	case CommitListsGenerated:
		return "COMMIT_LISTS_GENERATED"
	default:
		return "UNKNOWN"
	}
}

// action identifies the message class CheckStateMain/CheckStateSubset
// gate on. Unexported: callers go through CheckStateMain/CheckStateSubset,
// never compare actions directly.
type action int

const (
	actionSendAnnouncement action = iota
	actionProcessCommit
	actionProcessResponse
	actionProcessFinalCommit
	actionProcessFinalResponse
)

// checkStateMain implements the table in the leader design: which
// overall states a given action is legal in.
func checkStateMain(a action, s State) bool {
	switch a {
	case actionSendAnnouncement:
		return s == Initial
	case actionProcessCommit:
		return s == AnnounceDone
	case actionProcessResponse:
		return s == ChallengeDone || s == CollectiveSigDone
	case actionProcessFinalCommit:
		return s == CollectiveSigDone || s == FinalChallengeDone
	case actionProcessFinalResponse:
		return s == FinalChallengeDone
	default:
		return false
	}
}

// checkStateSubset implements the per-subset gating table.
func checkStateSubset(a action, s SubsetState) bool {
	switch a {
	case actionProcessResponse:
		return s == SubsetChallengeDone
	case actionProcessFinalCommit:
		return s == SubsetCollectiveSigDone
	case actionProcessFinalResponse:
		return s == SubsetFinalChallengeDone
	default:
		return false
	}
}
