package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/match-digest/internal/domain/match"
	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const defaultLookupWorkers = 8

type identityKind string

const (
	identityPlayer identityKind = "player"
	identityClub   identityKind = "club"
)

// FactAccumulator turns a partial match snapshot into a name-resolved fact
// set. Lookup failures degrade to the raw id; only context cancellation
// aborts accumulation.
type FactAccumulator struct {
	lookup  match.IdentityLookup
	workers int
	logger  *logging.Logger
	metrics DigestMetrics
}

func NewFactAccumulator(lookup match.IdentityLookup, workers int, logger *logging.Logger, metrics DigestMetrics) *FactAccumulator {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if workers <= 0 {
		workers = defaultLookupWorkers
	}
	return &FactAccumulator{
		lookup:  lookup,
		workers: workers,
		logger:  logger,
		metrics: metrics,
	}
}

func (a *FactAccumulator) Accumulate(ctx context.Context, partial match.PartialMatch, resolveNames bool) (facts match.FactSet, err error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.FactAccumulator.Accumulate",
		attribute.String("fixture.id", partial.FixtureID),
		attribute.Int("key_events.count", len(partial.KeyEvents)),
		attribute.Bool("resolve_names", resolveNames),
	)
	defer func() { endSpanWithError(span, err) }()

	facts = match.FactSet{
		HomeTeam:    partial.HomeTeam,
		AwayTeam:    partial.AwayTeam,
		Goals:       make([]match.GoalFact, 0),
		Cards:       make([]match.CardFact, 0),
		PlayerNames: make(map[string]string),
		ClubNames:   make(map[string]string),
	}

	if resolveNames && a.lookup != nil {
		playerIDs, clubIDs := collectIdentityIDs(partial)
		if err := a.resolve(ctx, playerIDs, clubIDs, facts.PlayerNames, facts.ClubNames); err != nil {
			return match.FactSet{}, err
		}
	}
	facts.HomeTeam.ClubName = facts.ClubNames[facts.HomeTeam.ClubID]
	facts.AwayTeam.ClubName = facts.ClubNames[facts.AwayTeam.ClubID]

	for _, event := range partial.KeyEvents {
		switch event.Kind() {
		case match.EventKindGoal:
			facts.Goals = append(facts.Goals, match.GoalFact{
				Team:     facts.ClubDisplay(event.ClubID),
				ClubID:   event.ClubID,
				Scorer:   facts.PlayerDisplay(event.ScorerPlayerID),
				ScorerID: event.ScorerPlayerID,
				Time:     event.Timestamp,
			})
			if event.ClubID == facts.HomeTeam.ClubID {
				facts.HomeGoals++
			} else {
				facts.AwayGoals++
			}
		case match.EventKindCard:
			facts.Cards = append(facts.Cards, match.CardFact{
				Team:       facts.ClubDisplay(event.ClubID),
				ClubID:     event.ClubID,
				Receiver:   facts.PlayerDisplay(event.PlayerID),
				ReceiverID: event.PlayerID,
				Time:       event.Timestamp,
			})
		default:
			a.logger.DebugContext(ctx, "ignore key event with unknown type",
				"fixture_id", partial.FixtureID,
				"type", int(event.Type),
			)
		}
	}

	return facts, nil
}

type identityTask struct {
	kind identityKind
	id   string
}

func (a *FactAccumulator) resolve(ctx context.Context, playerIDs, clubIDs []string, playerNames, clubNames map[string]string) error {
	tasks := make([]identityTask, 0, len(playerIDs)+len(clubIDs))
	for _, id := range playerIDs {
		tasks = append(tasks, identityTask{kind: identityPlayer, id: id})
	}
	for _, id := range clubIDs {
		tasks = append(tasks, identityTask{kind: identityClub, id: id})
	}
	if len(tasks) == 0 {
		return nil
	}

	pool, err := ants.NewPool(min(a.workers, len(tasks)))
	if err != nil {
		return fmt.Errorf("create lookup pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		workers sync.WaitGroup
	)
	for _, task := range tasks {
		task := task
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			name, ok := a.lookupOne(ctx, task)
			if !ok {
				return
			}
			mu.Lock()
			if task.kind == identityPlayer {
				playerNames[task.id] = name
			} else {
				clubNames[task.id] = name
			}
			mu.Unlock()
		}); err != nil {
			workers.Done()
			workers.Wait()
			return fmt.Errorf("submit lookup to worker pool: %w", err)
		}
	}
	workers.Wait()

	return ctx.Err()
}

func (a *FactAccumulator) lookupOne(ctx context.Context, task identityTask) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}

	var (
		name  string
		found bool
		err   error
	)
	switch task.kind {
	case identityPlayer:
		name, found, err = a.lookup.PlayerName(ctx, task.id)
	default:
		name, found, err = a.lookup.ClubName(ctx, task.id)
	}

	switch {
	case err != nil:
		a.metrics.RecordIdentityLookup(string(task.kind), lookupResultError)
		if ctx.Err() == nil || !errors.Is(err, ctx.Err()) {
			a.logger.WarnContext(ctx, "identity lookup failed, using raw id",
				"kind", string(task.kind),
				"id", task.id,
				"error", err,
			)
		}
		return "", false
	case !found || strings.TrimSpace(name) == "":
		a.metrics.RecordIdentityLookup(string(task.kind), lookupResultNotFound)
		return "", false
	default:
		a.metrics.RecordIdentityLookup(string(task.kind), lookupResultResolved)
		return strings.TrimSpace(name), true
	}
}

// collectIdentityIDs lists the ids a digest can mention, deduplicated in
// first-seen order: lineup players then key-event actors, and the clubs of
// both sides then key-event clubs.
func collectIdentityIDs(partial match.PartialMatch) (playerIDs, clubIDs []string) {
	seenPlayers := make(map[string]struct{})
	addPlayer := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seenPlayers[id]; ok {
			return
		}
		seenPlayers[id] = struct{}{}
		playerIDs = append(playerIDs, id)
	}
	seenClubs := make(map[string]struct{})
	addClub := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seenClubs[id]; ok {
			return
		}
		seenClubs[id] = struct{}{}
		clubIDs = append(clubIDs, id)
	}

	for _, id := range partial.HomeLineup.PlayerIDs {
		addPlayer(id)
	}
	for _, id := range partial.AwayLineup.PlayerIDs {
		addPlayer(id)
	}
	addClub(partial.HomeTeam.ClubID)
	addClub(partial.AwayTeam.ClubID)
	addClub(partial.HomeLineup.ClubID)
	addClub(partial.AwayLineup.ClubID)

	for _, event := range partial.KeyEvents {
		if event.Kind() == match.EventKindUnknown {
			continue
		}
		addPlayer(event.ActorID())
		addClub(event.ClubID)
	}
	return playerIDs, clubIDs
}
