package footium

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/match-digest/internal/domain/match"
)

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (id *flexID) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*id = ""
		return nil
	}
	if raw[0] == '"' {
		var value string
		if err := sonic.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = flexID(strings.TrimSpace(value))
		return nil
	}

	text := string(raw)
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return fmt.Errorf("decode numeric id %s: %w", text, err)
	}
	*id = flexID(text)
	return nil
}

func (id flexID) String() string {
	return string(id)
}

type partialMatchEnvelope struct {
	State   *partialMatchState `json:"state"`
	Lineups *lineupsPayload    `json:"lineups"`
}

type partialMatchState struct {
	HomeTeam  teamPayload       `json:"homeTeam"`
	AwayTeam  teamPayload       `json:"awayTeam"`
	KeyEvents []keyEventPayload `json:"keyEvents"`
}

type teamPayload struct {
	ClubID flexID `json:"clubId"`
	Stats  struct {
		Wins int `json:"wins"`
	} `json:"stats"`
}

type lineupsPayload struct {
	HomeTeam lineupPayload `json:"homeTeam"`
	AwayTeam lineupPayload `json:"awayTeam"`
}

type lineupPayload struct {
	ClubID        flexID `json:"clubId"`
	PlayerLineups []struct {
		PlayerID flexID `json:"playerId"`
	} `json:"playerLineups"`
}

type keyEventPayload struct {
	Type           int     `json:"type"`
	ScorerPlayerID flexID  `json:"scorerPlayerId"`
	PlayerID       flexID  `json:"playerId"`
	ClubID         flexID  `json:"clubId"`
	Timestamp      float64 `json:"timestamp"`
}

type framePayload struct {
	EventTypeAsString  string `json:"eventTypeAsString"`
	TeamInPossession   flexID `json:"teamInPossession"`
	PlayerInPossession flexID `json:"playerInPossession"`
}

// isEmptyPayload reports payloads the live API sends while a fixture has no
// data yet: null, false, 0, "" and [].
func isEmptyPayload(raw []byte) (bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true, nil
	}

	var value any
	if err := sonic.Unmarshal(trimmed, &value); err != nil {
		return false, fmt.Errorf("decode payload: %w", err)
	}
	switch typed := value.(type) {
	case nil:
		return true, nil
	case bool:
		return !typed, nil
	case float64:
		return typed == 0, nil
	case string:
		return typed == "", nil
	case []any:
		return len(typed) == 0, nil
	default:
		return false, nil
	}
}

// decodePartialMatch returns ok=false for empty payloads and an error for
// payloads that are not a match snapshot.
func decodePartialMatch(fixtureID string, raw []byte) (match.PartialMatch, bool, error) {
	empty, err := isEmptyPayload(raw)
	if err != nil {
		return match.PartialMatch{}, false, err
	}
	if empty {
		return match.PartialMatch{}, false, nil
	}

	var envelope partialMatchEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return match.PartialMatch{}, false, fmt.Errorf("decode partial match: %w", err)
	}
	if envelope.State == nil {
		return match.PartialMatch{}, false, fmt.Errorf("partial match payload has no state")
	}

	state := envelope.State
	out := match.PartialMatch{
		FixtureID: fixtureID,
		HomeTeam: match.TeamSnapshot{
			ClubID: state.HomeTeam.ClubID.String(),
			Wins:   state.HomeTeam.Stats.Wins,
		},
		AwayTeam: match.TeamSnapshot{
			ClubID: state.AwayTeam.ClubID.String(),
			Wins:   state.AwayTeam.Stats.Wins,
		},
		KeyEvents: make([]match.KeyEvent, 0, len(state.KeyEvents)),
	}
	if envelope.Lineups != nil {
		out.HomeLineup = toLineup(envelope.Lineups.HomeTeam, out.HomeTeam.ClubID)
		out.AwayLineup = toLineup(envelope.Lineups.AwayTeam, out.AwayTeam.ClubID)
	} else {
		out.HomeLineup = match.Lineup{ClubID: out.HomeTeam.ClubID}
		out.AwayLineup = match.Lineup{ClubID: out.AwayTeam.ClubID}
	}
	for _, item := range state.KeyEvents {
		out.KeyEvents = append(out.KeyEvents, match.KeyEvent{
			Type:           match.KeyEventType(item.Type),
			ScorerPlayerID: item.ScorerPlayerID.String(),
			PlayerID:       item.PlayerID.String(),
			ClubID:         item.ClubID.String(),
			Timestamp:      item.Timestamp,
		})
	}

	return out, true, nil
}

func decodeFrames(raw []byte) ([]match.PossessionFrame, bool, error) {
	empty, err := isEmptyPayload(raw)
	if err != nil {
		return nil, false, err
	}
	if empty {
		return nil, false, nil
	}

	var items []framePayload
	if err := sonic.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("decode match frames: %w", err)
	}

	out := make([]match.PossessionFrame, 0, len(items))
	for _, item := range items {
		out = append(out, match.PossessionFrame{
			EventType:          strings.TrimSpace(item.EventTypeAsString),
			TeamInPossession:   item.TeamInPossession.String(),
			PlayerInPossession: item.PlayerInPossession.String(),
		})
	}
	return out, true, nil
}

func toLineup(item lineupPayload, fallbackClubID string) match.Lineup {
	clubID := item.ClubID.String()
	if clubID == "" {
		clubID = fallbackClubID
	}
	out := match.Lineup{
		ClubID:    clubID,
		PlayerIDs: make([]string, 0, len(item.PlayerLineups)),
	}
	for _, player := range item.PlayerLineups {
		if id := player.PlayerID.String(); id != "" {
			out.PlayerIDs = append(out.PlayerIDs, id)
		}
	}
	return out
}
