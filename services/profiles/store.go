package profiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go/v4"

	"animeshelf/internal/database"
	"animeshelf/internal/metrics"
	"animeshelf/internal/validation"
	"animeshelf/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrEntryNotFound   = errors.New("entry not found")
	ErrInvalidEpisode  = errors.New("episode must not be negative")
	// ErrVersionConflict is returned when concurrent writers kept winning
	// after every retry.
	ErrVersionConflict = database.ErrVersionConflict
)

const defaultConflictRetries = 5

// Options configures a Store.
type Options struct {
	// Exclusive keeps an id in at most one list.
	Exclusive          bool
	MaxConflictRetries int
	RetryDelay         time.Duration
}

// Store reads and mutates profile documents. Every write is a
// read-modify-write guarded by the document version.
type Store struct {
	repo      *database.ProfileRepository
	broker    *broker
	exclusive bool
	attempts  uint
	delay     time.Duration

	// failpoint lets tests abort a mutation between its steps.
	failpoint func(step string) error
}

// NewStore constructs a Store over the database.
func NewStore(db *database.DB, opts Options) *Store {
	if opts.MaxConflictRetries <= 0 {
		opts.MaxConflictRetries = defaultConflictRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Millisecond
	}
	return &Store{
		repo:      db.Profiles,
		broker:    newBroker(),
		exclusive: opts.Exclusive,
		attempts:  uint(opts.MaxConflictRetries),
		delay:     opts.RetryDelay,
	}
}

// Get returns the current profile.
func (s *Store) Get(ctx context.Context, userID string) (models.Profile, error) {
	row, err := s.repo.Get(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	return decodeRow(row)
}

// Subscribe streams the current profile followed by every committed version
// until the subscription is closed or ctx ends.
func (s *Store) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := s.broker.attach(userID)
	current, err := s.Get(ctx, userID)
	if err != nil {
		sub.Close()
		return nil, err
	}
	s.broker.deliver(sub, current)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// UpdateLists applies every op of patch in one transaction.
func (s *Store) UpdateLists(ctx context.Context, userID string, patch models.ListPatch) (models.Profile, error) {
	if err := validatePatch(patch); err != nil {
		return models.Profile{}, err
	}
	return s.mutate(ctx, "update_lists", userID, "", func(p *models.Profile) error {
		for _, op := range patch.Ops {
			applyOp(p, op, s.exclusive)
		}
		return nil
	})
}

// Add unions entry into list.
func (s *Store) Add(ctx context.Context, userID string, list models.ListName, entry models.ListEntry) (models.Profile, error) {
	return s.UpdateLists(ctx, userID, models.ListPatch{Ops: []models.ListOp{{
		Op: models.OpUnion, List: list, Entries: []models.ListEntry{entry},
	}}})
}

// Remove drops the entry with id from list. Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, userID string, list models.ListName, id int64) (models.Profile, error) {
	return s.UpdateLists(ctx, userID, models.ListPatch{Ops: []models.ListOp{{
		Op: models.OpRemove, List: list, Entries: []models.ListEntry{{ID: id}},
	}}})
}

// Move transfers one entry between lists atomically. A request whose entry
// already sits only in the destination succeeds without a write.
func (s *Store) Move(ctx context.Context, userID string, req models.MoveRequest) (models.Profile, error) {
	if err := validation.Struct(req); err != nil {
		return models.Profile{}, err
	}
	return s.mutate(ctx, "move", userID, req.IdempotencyKey, func(p *models.Profile) error {
		return s.move(p, req.ID, req.From, req.To)
	})
}

// Complete moves a watching entry to watched, keeping id, title, image and
// genres.
func (s *Store) Complete(ctx context.Context, userID string, id int64, idempotencyKey string) (models.Profile, error) {
	return s.Move(ctx, userID, models.MoveRequest{
		ID:             id,
		From:           models.ListWatching,
		To:             models.ListWatched,
		IdempotencyKey: idempotencyKey,
	})
}

// SetEpisode updates the tracked episode of a watching entry in place.
func (s *Store) SetEpisode(ctx context.Context, userID string, id int64, episode int) (models.Profile, error) {
	if episode < 0 {
		return models.Profile{}, ErrInvalidEpisode
	}
	return s.mutate(ctx, "set_episode", userID, "", func(p *models.Profile) error {
		return updateEpisode(p, id, func(int) int { return episode })
	})
}

// IncrementEpisode advances the tracked episode of a watching entry by one.
func (s *Store) IncrementEpisode(ctx context.Context, userID string, id int64) (models.Profile, error) {
	return s.mutate(ctx, "increment_episode", userID, "", func(p *models.Profile) error {
		return updateEpisode(p, id, func(n int) int { return n + 1 })
	})
}

// SubscriberCount reports the open subscriptions for userID.
func (s *Store) SubscriberCount(userID string) int {
	return s.broker.count(userID)
}

func (s *Store) move(p *models.Profile, id int64, from, to models.ListName) error {
	src, dst := p.List(from), p.List(to)
	srcIdx, dstIdx := indexOf(src, id), indexOf(dst, id)
	if srcIdx < 0 {
		if dstIdx >= 0 {
			return nil
		}
		return fmt.Errorf("%w: %d in %s", ErrEntryNotFound, id, from)
	}

	entry := src[srcIdx].Clone()
	p.SetList(from, remove(src, id))
	if err := s.step("removed"); err != nil {
		return err
	}

	if to == models.ListWatching {
		if entry.Episode == nil {
			zero := 0
			entry.Episode = &zero
		}
	} else {
		entry.Episode = nil
	}
	p.SetList(to, union(p.List(to), entry))
	if s.exclusive {
		for _, other := range models.AllLists {
			if other != to {
				p.SetList(other, remove(p.List(other), id))
			}
		}
	}
	return s.step("added")
}

func (s *Store) step(name string) error {
	if s.failpoint == nil {
		return nil
	}
	return s.failpoint(name)
}

func updateEpisode(p *models.Profile, id int64, next func(int) int) error {
	idx := indexOf(p.Watching, id)
	if idx < 0 {
		return fmt.Errorf("%w: %d in %s", ErrEntryNotFound, id, models.ListWatching)
	}
	n := next(p.Watching[idx].EpisodeOrZero())
	if n < 0 {
		return ErrInvalidEpisode
	}
	p.Watching[idx].Episode = &n
	return nil
}

// mutate runs fn against a fresh copy of the profile and writes the result
// if the stored version did not move in between. Conflicts are retried.
func (s *Store) mutate(ctx context.Context, op, userID, idempotencyKey string, fn func(*models.Profile) error) (models.Profile, error) {
	result, err := retry.DoWithData(
		func() (models.Profile, error) {
			return s.attempt(ctx, userID, idempotencyKey, fn)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(s.delay),
		retry.MaxDelay(50*s.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, database.ErrVersionConflict)
		}),
		retry.OnRetry(func(n uint, err error) {
			metrics.VersionConflicts.Inc()
			log.Printf("[profiles] %s for %s conflicted (attempt %d): %v", op, userID, n+1, err)
		}),
	)
	if err != nil {
		metrics.ProfileMutations.WithLabelValues(op, "error").Inc()
		return models.Profile{}, err
	}
	metrics.ProfileMutations.WithLabelValues(op, "ok").Inc()
	return result, nil
}

func (s *Store) attempt(ctx context.Context, userID, idempotencyKey string, fn func(*models.Profile) error) (models.Profile, error) {
	if idempotencyKey != "" {
		applied, err := s.repo.MutationApplied(ctx, userID, idempotencyKey)
		if err != nil {
			return models.Profile{}, err
		}
		if applied {
			return s.Get(ctx, userID)
		}
	}

	row, err := s.repo.Get(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	current, err := decodeRow(row)
	if err != nil {
		return models.Profile{}, err
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return models.Profile{}, err
	}
	doc, err := encodeDocument(next)
	if err != nil {
		return models.Profile{}, err
	}
	if bytes.Equal(doc, row.Document) {
		return current, nil
	}

	written, err := s.repo.Write(ctx, userID, doc, row.Version, idempotencyKey)
	switch {
	case errors.Is(err, database.ErrDuplicate):
		// Another request with the same key committed first.
		return s.Get(ctx, userID)
	case errors.Is(err, database.ErrNotFound):
		return models.Profile{}, ErrProfileNotFound
	case err != nil:
		return models.Profile{}, err
	}

	next.Version = written.Version
	next.UpdatedAt = written.UpdatedAt
	s.broker.publish(next)
	return next, nil
}

func validatePatch(patch models.ListPatch) error {
	if err := validation.Struct(patch); err != nil {
		return err
	}
	for _, op := range patch.Ops {
		if op.Op != models.OpUnion {
			continue
		}
		for _, e := range op.Entries {
			if err := validation.Struct(e); err != nil {
				return err
			}
		}
	}
	return nil
}
