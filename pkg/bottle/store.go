package bottle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

var (
	// ErrNoBottles is returned (possibly wrapped) by a RemoteAPI when the
	// remote sea has nothing left for the user.
	ErrNoBottles = errors.New("no bottles available")
	// ErrNoRemote is returned for cloud operations on a store without a
	// remote service.
	ErrNoRemote = errors.New("remote bottle service not configured")
	// ErrMissingID is returned when the remote service answers without an id.
	ErrMissingID = errors.New("remote service did not return a bottle_id")
)

// RemoteAPI is the remote bottle service. Ids are returned without the cloud
// prefix; the store adds it.
type RemoteAPI interface {
	Create(ctx context.Context, d Draft) (string, error)
	Pick(ctx context.Context, userID string) (*Bottle, error)
	ActiveCount(ctx context.Context) (int, error)
}

// Moderator judges bottle content. true means compliant.
type Moderator interface {
	CheckText(ctx context.Context, text string) (bool, error)
	CheckImage(ctx context.Context, img Image) (bool, error)
}

// Screen runs the text and then every image past m. The first rejection
// withholds the whole bottle.
func Screen(ctx context.Context, m Moderator, b *Bottle) (bool, error) {
	if b.Content != "" {
		ok, err := m.CheckText(ctx, b.Content)
		if err != nil {
			return false, fmt.Errorf("checking text: %w", err)
		}
		if !ok {
			return false, nil
		}
	}
	for i, img := range b.Images {
		ok, err := m.CheckImage(ctx, img)
		if err != nil {
			return false, fmt.Errorf("checking image %d: %w", i, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type PickStatus int

const (
	Picked PickStatus = iota
	Empty
	Blocked
)

func (s PickStatus) String() string {
	switch s {
	case Picked:
		return "picked"
	case Empty:
		return "empty"
	case Blocked:
		return "blocked"
	default:
		return fmt.Sprintf("PickStatus(%d)", int(s))
	}
}

type PickResult struct {
	Bottle *Bottle
	Status PickStatus
}

// Store owns the bottle document. All reads and writes of the document go
// through mu; remote and moderation calls never hold it.
type Store struct {
	path string

	mu  sync.Mutex
	doc Document
	rng *rand.Rand

	limits        Limits
	remote        RemoteAPI
	moderator     Moderator
	moderateLocal bool
	now           func() time.Time
}

type Option func(*Store)

func WithRemote(r RemoteAPI) Option { return func(s *Store) { s.remote = r } }

func WithModerator(m Moderator) Option { return func(s *Store) { s.moderator = m } }

// WithModerateLocal also screens local bottles on pick.
func WithModerateLocal(v bool) Option { return func(s *Store) { s.moderateLocal = v } }

func WithLimits(l Limits) Option { return func(s *Store) { s.limits = l } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithRand(r *rand.Rand) Option { return func(s *Store) { s.rng = r } }

// Open loads the document at path, creating it if needed. Before a repaired
// or undecodable file is rewritten, its original bytes are kept at path.bak.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		limits: DefaultLimits(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if err := ensureFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bottle document: %w", err)
	}

	doc, repaired, err := decodeDocument(data)
	if repaired && len(data) > 0 {
		if berr := backupFile(path, data); berr != nil {
			return nil, fmt.Errorf("backing up bottle document before repair: %w", berr)
		}
	}
	if err != nil {
		logger.ErrorCF("store", "Failed to load bottle data, starting empty", map[string]any{
			"path":   path,
			"backup": path + ".bak",
			"error":  err.Error(),
		})
	}
	s.doc = doc
	if repaired && err == nil {
		logger.WarnCF("store", "Repaired bottle document", map[string]any{
			"path":   path,
			"backup": path + ".bak",
		})
		s.save()
	}

	logger.InfoCF("store", "Bottle store opened", map[string]any{
		"path":          path,
		"active":        len(doc.Active),
		"users":         len(doc.UserList),
		"next_local_id": doc.NextLocalID,
	})
	return s, nil
}

// Path returns the data file location.
func (s *Store) Path() string { return s.path }

// Limits returns the limits drafts are validated against.
func (s *Store) Limits() Limits { return s.limits }

// save writes the document. Caller holds mu. Failures are logged and the
// in-memory state is kept.
func (s *Store) save() {
	if err := writeDocument(s.path, s.doc); err != nil {
		logger.ErrorCF("store", "Failed to save bottle data", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
	}
}

// Add throws a bottle and returns its id.
func (s *Store) Add(ctx context.Context, d Draft, origin Origin) (string, error) {
	if err := s.limits.Check(d.Content, d.Images); err != nil {
		return "", err
	}

	var id string
	switch origin {
	case Cloud:
		if s.remote == nil {
			return "", ErrNoRemote
		}
		raw, err := s.remote.Create(ctx, d)
		if err != nil {
			logger.ErrorCF("store", "Failed to add cloud bottle", map[string]any{"error": err.Error()})
			return "", err
		}
		if raw == "" {
			return "", ErrMissingID
		}
		id = cloudID(raw)
	default:
		s.mu.Lock()
		n := s.doc.NextLocalID
		id = localID(n)
		s.doc.NextLocalID = n + 1
		s.doc.Active = append(s.doc.Active, Bottle{
			ID:        id,
			Content:   d.Content,
			Images:    cloneImages(d.Images),
			Sender:    d.Sender,
			SenderID:  d.SenderID,
			Timestamp: s.now().Format(TimeLayout),
			Picked:    false,
		})
		s.save()
		s.mu.Unlock()
	}

	logger.InfoCF("store", "Bottle added", map[string]any{
		"bottle_id": id,
		"origin":    origin.String(),
		"sender_id": d.SenderID,
	})
	return id, nil
}

// PickOption tunes a single Pick call.
type PickOption func(*pickOptions)

type pickOptions struct {
	token string
}

// WithViewToken screens platform images the way the picker will fetch them,
// with the platform access token appended.
func WithViewToken(token string) PickOption {
	return func(o *pickOptions) { o.token = token }
}

// Pick draws a random bottle thrown by someone other than userID and moves
// it into userID's collection. A bottle that fails moderation is never
// recorded for the picker.
func (s *Store) Pick(ctx context.Context, userID string, origin Origin, opts ...PickOption) (PickResult, error) {
	var o pickOptions
	for _, opt := range opts {
		opt(&o)
	}
	if origin == Cloud {
		return s.pickCloud(ctx, userID, o)
	}
	return s.pickLocal(ctx, userID, o)
}

func (s *Store) pickCloud(ctx context.Context, userID string, o pickOptions) (PickResult, error) {
	if s.remote == nil {
		return PickResult{}, ErrNoRemote
	}
	b, err := s.remote.Pick(ctx, userID)
	if errors.Is(err, ErrNoBottles) {
		logger.InfoCF("store", "No cloud bottles for user", map[string]any{"user_id": userID})
		return PickResult{Status: Empty}, nil
	}
	if err != nil {
		logger.ErrorCF("store", "Failed to pick cloud bottle", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return PickResult{}, err
	}
	if b == nil {
		return PickResult{Status: Empty}, nil
	}
	if b.ID == "" {
		logger.ErrorCF("store", "Cloud bottle has no id", map[string]any{"user_id": userID})
		return PickResult{}, ErrMissingID
	}
	picked := b.Clone()
	picked.ID = cloudID(picked.ID)
	picked.Picked = true

	// The remote service has already consumed the bottle; a rejected bottle
	// is gone either way.
	if s.moderator != nil {
		ok, err := s.screen(ctx, picked, o)
		if err != nil {
			return PickResult{}, err
		}
		if !ok {
			logger.WarnCF("store", "Cloud bottle blocked by moderation", map[string]any{"bottle_id": picked.ID})
			return PickResult{Status: Blocked}, nil
		}
	}

	s.mu.Lock()
	s.doc.UserList[userID] = append(s.doc.UserList[userID], picked)
	s.save()
	s.mu.Unlock()

	logger.InfoCF("store", "Bottle picked", map[string]any{
		"user_id":   userID,
		"bottle_id": picked.ID,
		"origin":    "cloud",
	})
	out := picked.Clone()
	return PickResult{Bottle: &out, Status: Picked}, nil
}

// pickLocal draws under mu. With local moderation on, the draw is screened
// with mu released and then taken only if nobody else took it meanwhile; a
// rejected bottle is removed from the sea.
func (s *Store) pickLocal(ctx context.Context, userID string, o pickOptions) (PickResult, error) {
	screenLocal := s.moderateLocal && s.moderator != nil
	for {
		s.mu.Lock()
		var candidates []int
		for i, b := range s.doc.Active {
			if !b.Picked && b.SenderID != userID {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			s.mu.Unlock()
			return PickResult{Status: Empty}, nil
		}

		idx := candidates[s.rng.IntN(len(candidates))]
		drawn := s.doc.Active[idx].Clone()
		if screenLocal {
			s.mu.Unlock()
			ok, err := s.screen(ctx, drawn, o)
			if err != nil {
				return PickResult{}, err
			}
			s.mu.Lock()
			idx = s.activeIndex(drawn.ID)
			if idx < 0 {
				// Taken by another picker while screening.
				s.mu.Unlock()
				continue
			}
			if !ok {
				s.removeActive(idx)
				s.save()
				s.mu.Unlock()
				logger.WarnCF("store", "Local bottle blocked by moderation", map[string]any{"bottle_id": drawn.ID})
				return PickResult{Status: Blocked}, nil
			}
		}

		picked := s.doc.Active[idx]
		s.removeActive(idx)
		picked.Picked = true
		s.doc.UserList[userID] = append(s.doc.UserList[userID], picked)
		s.save()
		s.mu.Unlock()

		logger.InfoCF("store", "Bottle picked", map[string]any{
			"user_id":   userID,
			"bottle_id": picked.ID,
			"origin":    "local",
		})
		out := picked.Clone()
		return PickResult{Bottle: &out, Status: Picked}, nil
	}
}

// screen runs b past the moderator as the picker would see it.
func (s *Store) screen(ctx context.Context, b Bottle, o pickOptions) (bool, error) {
	view := b.View(o.token)
	ok, err := Screen(ctx, s.moderator, &view)
	if err != nil {
		logger.ErrorCF("store", "Moderation failed", map[string]any{
			"bottle_id": b.ID,
			"error":     err.Error(),
		})
	}
	return ok, err
}

// activeIndex finds an unpicked bottle by id. Caller holds mu.
func (s *Store) activeIndex(id string) int {
	for i, b := range s.doc.Active {
		if b.ID == id && !b.Picked {
			return i
		}
	}
	return -1
}

// removeActive drops Active[idx] without aliasing the old backing array.
// Caller holds mu.
func (s *Store) removeActive(idx int) {
	s.doc.Active = append(s.doc.Active[:idx:idx], s.doc.Active[idx+1:]...)
}

// GetPicked returns one of userID's picked bottles: the one with the given
// id, or a random one when id is empty.
func (s *Store) GetPicked(userID, id string) (*Bottle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.doc.UserList[userID]
	if len(list) == 0 {
		return nil, false
	}
	if id == "" {
		b := list[s.rng.IntN(len(list))].Clone()
		return &b, true
	}
	for _, b := range list {
		if b.ID == id {
			out := b.Clone()
			return &out, true
		}
	}
	return nil, false
}

// Counts returns the number of unpicked local bottles and the number of
// bottles userID has picked.
func (s *Store) Counts(userID string) (active, picked int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Active), len(s.doc.UserList[userID])
}

// CloudActiveCount asks the remote service how many bottles are still
// floating. It returns -1 together with the error on failure.
func (s *Store) CloudActiveCount(ctx context.Context) (int, error) {
	if s.remote == nil {
		return -1, ErrNoRemote
	}
	n, err := s.remote.ActiveCount(ctx)
	if err != nil {
		logger.ErrorCF("store", "Failed to get cloud bottle count", map[string]any{"error": err.Error()})
		return -1, err
	}
	return n, nil
}

// ListPicked returns userID's picked bottles, newest first. Bottles with the
// same timestamp keep their document order.
func (s *Store) ListPicked(userID string) []Bottle {
	s.mu.Lock()
	list := make([]Bottle, len(s.doc.UserList[userID]))
	for i, b := range s.doc.UserList[userID] {
		list[i] = b.Clone()
	}
	s.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp > list[j].Timestamp
	})
	return list
}

// Snapshot returns the current document encoded as it is on disk.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encodeDocument(s.doc)
}

func cloneImages(imgs []Image) []Image {
	out := make([]Image, len(imgs))
	copy(out, imgs)
	return out
}
