package httpapi

import "github.com/riskibarqy/match-digest/internal/domain/match"

type goalDTO struct {
	Team         string  `json:"team"`
	GoalScorer   string  `json:"goal_scorer"`
	GoalScorerID string  `json:"goal_scorer_id"`
	ClubID       string  `json:"club_id"`
	GoalTime     float64 `json:"goal_time"`
}

type cardDTO struct {
	Team           string  `json:"team"`
	CardReceiver   string  `json:"card_receiver"`
	CardReceiverID string  `json:"card_receiver_id"`
	ClubID         string  `json:"club_id"`
	CardTime       float64 `json:"card_time"`
}

type matchDigestDTO struct {
	FixtureID     string    `json:"fixtureId"`
	Digest        string    `json:"digest"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	Goals         []goalDTO `json:"goals"`
	Cards         []cardDTO `json:"cards"`
	HomeTeamGoals int       `json:"homeTeamGoals"`
	AwayTeamGoals int       `json:"awayTeamGoals"`
	HomeTeamName  string    `json:"homeTeamName"`
	AwayTeamName  string    `json:"awayTeamName"`
	HomeTeamWins  int       `json:"homeTeamWins"`
	AwayTeamWins  int       `json:"awayTeamWins"`
}

func toMatchDigestDTO(d match.MatchDigest) matchDigestDTO {
	goals := make([]goalDTO, 0, len(d.Goals))
	for _, g := range d.Goals {
		goals = append(goals, goalDTO{
			Team:         g.Team,
			GoalScorer:   g.Scorer,
			GoalScorerID: g.ScorerID,
			ClubID:       g.ClubID,
			GoalTime:     g.Time,
		})
	}
	cards := make([]cardDTO, 0, len(d.Cards))
	for _, c := range d.Cards {
		cards = append(cards, cardDTO{
			Team:           c.Team,
			CardReceiver:   c.Receiver,
			CardReceiverID: c.ReceiverID,
			ClubID:         c.ClubID,
			CardTime:       c.Time,
		})
	}

	return matchDigestDTO{
		FixtureID:     d.FixtureID,
		Digest:        d.Digest,
		ImageURL:      d.ImageURL,
		Goals:         goals,
		Cards:         cards,
		HomeTeamGoals: d.HomeGoals,
		AwayTeamGoals: d.AwayGoals,
		HomeTeamName:  d.HomeTeamName,
		AwayTeamName:  d.AwayTeamName,
		HomeTeamWins:  d.HomeTeamWins,
		AwayTeamWins:  d.AwayTeamWins,
	}
}
