package domain

import (
	"fmt"
	"time"
)

// State enumerates processing milestones of a channel message.
type State string

const (
	StateReceived     State = "RECEIVED"
	StateResolving    State = "RESOLVING"
	StateExtracting   State = "EXTRACTING"
	StateNormalizing  State = "NORMALIZING"
	StateCategorizing State = "CATEGORIZING"
	StatePersisting   State = "PERSISTING"
	StatePersisted    State = "PERSISTED"
	StateFailed       State = "FAILED"
)

// States lists every state in pipeline order.
var States = []State{
	StateReceived,
	StateResolving,
	StateExtracting,
	StateNormalizing,
	StateCategorizing,
	StatePersisting,
	StatePersisted,
	StateFailed,
}

var forward = map[State]State{
	StateReceived:     StateResolving,
	StateResolving:    StateExtracting,
	StateExtracting:   StateNormalizing,
	StateNormalizing:  StateCategorizing,
	StateCategorizing: StatePersisting,
	StatePersisting:   StatePersisted,
}

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}

var stageOfState = map[State]Stage{
	StateReceived:     StageExtract,
	StateResolving:    StageResolve,
	StateExtracting:   StageScrape,
	StateNormalizing:  StageNormalize,
	StateCategorizing: StageClassify,
	StatePersisting:   StagePersist,
}

// Stage returns the pipeline step that runs while a record sits in s. It is
// empty for terminal states.
func (s State) Stage() Stage {
	return stageOfState[s]
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransition reports whether from -> to is allowed. States advance one step
// at a time, any non-terminal state may fail, and FAILED may only be reset to
// RECEIVED by an operator retry.
func CanTransition(from, to State) bool {
	switch {
	case from == StateFailed:
		return to == StateReceived
	case from == StatePersisted:
		return false
	case to == StateFailed:
		return true
	default:
		return forward[from] == to
	}
}

// CanTransition is the method form of the package-level CanTransition.
func (s State) CanTransition(to State) bool {
	return CanTransition(s, to)
}

// ProcessingRecord tracks one channel message through the pipeline.
type ProcessingRecord struct {
	ID         int64
	ChannelID  string
	MessageID  int64
	State      State
	Error      string
	ErrorStage Stage
	Attempts   int
	ContentIDs []int64
	Message    ChannelMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key identifies the record's message.
func (r ProcessingRecord) Key() MessageKey {
	return MessageKey{ChannelID: r.ChannelID, MessageID: r.MessageID}
}

// TransitionError reports a rejected state change.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// UnifiedContentRecord is the persisted, display-ready listing.
type UnifiedContentRecord struct {
	ID                  int64
	Title               string
	Description         string
	Price               *float64
	OriginalPrice       *float64
	Currency            string
	Discount            *int
	ImageURL            string
	ProductURL          string
	AffiliateURL        string
	AffiliateNetwork    string
	AffiliateTagApplied bool
	Rating              *float64
	ReviewCount         int
	CategoryID          int64
	Category            string
	ContentType         ContentType
	DisplayPages        []string
	PageSlug            string
	IsFeatured          bool
	BundleGroupID       string
	BundleSequence      int
	BundleTotal         int
	SourceChannelID     string
	SourceMessageID     int64
	ExtractionSource    CandidateSource
	LimitedOffer        bool
	HasTimer            bool
	TimerStart          *time.Time
	TimerDurationHours  int
	IsActive            bool
	IsVisible           bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
