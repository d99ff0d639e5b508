package match

import (
	"strconv"
	"strings"
)

// KeyEventType is the discriminant of a key event in match state.
type KeyEventType int

const (
	KeyEventGoal KeyEventType = 0
	KeyEventCard KeyEventType = 2
)

type EventKind string

const (
	EventKindGoal    EventKind = "goal"
	EventKindCard    EventKind = "card"
	EventKindUnknown EventKind = "unknown"
)

// TeamSnapshot is one side of a fixture as reported by the partial match
// snapshot. ClubName is filled during fact accumulation.
type TeamSnapshot struct {
	ClubID   string
	Wins     int
	ClubName string
}

type Lineup struct {
	ClubID    string
	PlayerIDs []string
}

// KeyEvent is a goal or card recorded in match state. Goals carry the actor
// in ScorerPlayerID, cards in PlayerID.
type KeyEvent struct {
	Type           KeyEventType
	ScorerPlayerID string
	PlayerID       string
	ClubID         string
	Timestamp      float64
}

func (e KeyEvent) Kind() EventKind {
	switch e.Type {
	case KeyEventGoal:
		return EventKindGoal
	case KeyEventCard:
		return EventKindCard
	default:
		return EventKindUnknown
	}
}

// ActorID returns the player the event is attributed to, empty for unknown
// event types.
func (e KeyEvent) ActorID() string {
	switch e.Kind() {
	case EventKindGoal:
		return e.ScorerPlayerID
	case EventKindCard:
		return e.PlayerID
	default:
		return ""
	}
}

// PartialMatch is the authoritative full-state snapshot of a fixture.
type PartialMatch struct {
	FixtureID  string
	HomeTeam   TeamSnapshot
	AwayTeam   TeamSnapshot
	HomeLineup Lineup
	AwayLineup Lineup
	KeyEvents  []KeyEvent
}

// PossessionFrame is one frame of the match frames stream.
type PossessionFrame struct {
	EventType          string
	TeamInPossession   string
	PlayerInPossession string
}

type GoalFact struct {
	Team     string
	ClubID   string
	Scorer   string
	ScorerID string
	Time     float64
}

type CardFact struct {
	Team       string
	ClubID     string
	Receiver   string
	ReceiverID string
	Time       float64
}

// FactSet is the accumulated, name-resolved view of a partial match.
type FactSet struct {
	HomeTeam    TeamSnapshot
	AwayTeam    TeamSnapshot
	Goals       []GoalFact
	Cards       []CardFact
	PlayerNames map[string]string
	ClubNames   map[string]string
	HomeGoals   int
	AwayGoals   int
}

// PlayerDisplay returns the resolved player name, or the raw id.
func (f FactSet) PlayerDisplay(playerID string) string {
	return display(f.PlayerNames, playerID)
}

// ClubDisplay returns the resolved club name, or the raw id.
func (f FactSet) ClubDisplay(clubID string) string {
	return display(f.ClubNames, clubID)
}

func (f FactSet) ScoreLine() string {
	return f.ClubDisplay(f.HomeTeam.ClubID) + " " + strconv.Itoa(f.HomeGoals) + " - " + strconv.Itoa(f.AwayGoals) + " " + f.ClubDisplay(f.AwayTeam.ClubID)
}

// MatchDigest is the response payload of a digest request.
type MatchDigest struct {
	FixtureID    string
	Digest       string
	ImageURL     string
	Goals        []GoalFact
	Cards        []CardFact
	HomeGoals    int
	AwayGoals    int
	HomeTeamName string
	AwayTeamName string
	HomeTeamWins int
	AwayTeamWins int
}

func display(names map[string]string, id string) string {
	if name := strings.TrimSpace(names[id]); name != "" {
		return name
	}
	return id
}
