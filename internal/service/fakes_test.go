package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/contest-leaderboard/internal/domain"
)

type submissionKey struct {
	contestID    int64
	userID       string
	problemID    string
	submissionID int64
}

// memLedger is an in-memory Ledger. WithContest serializes all units of work and
// rolls every change back when fn fails.
type memLedger struct {
	mu           sync.Mutex
	nextID       int64
	contests     map[int64]domain.Contest
	problems     map[int64][]domain.ContestProblem
	participants map[int64][]domain.Participant
	submissions  map[submissionKey]domain.SubmissionRecord
	handles      map[string]string
	joinClock    time.Time
}

func newMemLedger() *memLedger {
	return &memLedger{
		contests:     make(map[int64]domain.Contest),
		problems:     make(map[int64][]domain.ContestProblem),
		participants: make(map[int64][]domain.Participant),
		submissions:  make(map[submissionKey]domain.SubmissionRecord),
		handles:      make(map[string]string),
		joinClock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (l *memLedger) CreateContest(_ context.Context, c domain.Contest, problems []domain.ContestProblem) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	c.ID = l.nextID
	l.contests[c.ID] = c
	snap := make([]domain.ContestProblem, len(problems))
	for i, p := range problems {
		p.ContestID = c.ID
		snap[i] = p
	}
	l.problems[c.ID] = snap
	return c.ID, nil
}

func (l *memLedger) GetContest(_ context.Context, id int64) (*domain.Contest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contests[id]
	if !ok {
		return nil, domain.ErrContestNotFound
	}
	return &c, nil
}

func (l *memLedger) ListContests(_ context.Context, statuses ...domain.ContestStatus) ([]domain.ContestSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.ContestSummary
	for _, c := range l.contests {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, domain.ContestSummary{Contest: c, Participants: len(l.participants[c.ID])})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (l *memLedger) ListLiveContests(_ context.Context) ([]domain.Contest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Contest
	for _, c := range l.contests {
		if c.Status == domain.StatusRunning && c.Leaderboard != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *memLedger) ListProblems(_ context.Context, id int64) ([]domain.ContestProblem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ContestProblem(nil), l.problems[id]...), nil
}

func (l *memLedger) ListParticipants(_ context.Context, id int64) ([]domain.Participant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.participantsLocked(id), nil
}

func (l *memLedger) participantsLocked(id int64) []domain.Participant {
	out := make([]domain.Participant, len(l.participants[id]))
	for i, p := range l.participants[id] {
		p.Handle = l.handles[p.UserID]
		out[i] = p
	}
	return out
}

func (l *memLedger) ListSolved(_ context.Context, id int64, userID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for k, rec := range l.submissions {
		if k.contestID == id && k.userID == userID && rec.Verdict == domain.VerdictAccepted && !seen[k.problemID] {
			seen[k.problemID] = true
			out = append(out, k.problemID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *memLedger) LinkHandle(_ context.Context, userID, handle string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handles[userID] = handle
	return nil
}

func (l *memLedger) WithContest(ctx context.Context, id int64, fn func(tx domain.ContestTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contests[id]
	if !ok {
		return domain.ErrContestNotFound
	}

	saved := l.snapshot()
	if err := fn(&memTx{ledger: l, contest: c}); err != nil {
		l.restore(saved)
		return err
	}
	return nil
}

func (l *memLedger) recordCount(contestID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k := range l.submissions {
		if k.contestID == contestID {
			n++
		}
	}
	return n
}

type memState struct {
	contests     map[int64]domain.Contest
	participants map[int64][]domain.Participant
	submissions  map[submissionKey]domain.SubmissionRecord
}

func (l *memLedger) snapshot() memState {
	s := memState{
		contests:     make(map[int64]domain.Contest, len(l.contests)),
		participants: make(map[int64][]domain.Participant, len(l.participants)),
		submissions:  make(map[submissionKey]domain.SubmissionRecord, len(l.submissions)),
	}
	for k, v := range l.contests {
		s.contests[k] = v
	}
	for k, v := range l.participants {
		s.participants[k] = append([]domain.Participant(nil), v...)
	}
	for k, v := range l.submissions {
		s.submissions[k] = v
	}
	return s
}

func (l *memLedger) restore(s memState) {
	l.contests = s.contests
	l.participants = s.participants
	l.submissions = s.submissions
}

type memTx struct {
	ledger  *memLedger
	contest domain.Contest
}

func (t *memTx) Contest() domain.Contest { return t.contest }

func (t *memTx) UpdateStatus(_ context.Context, status domain.ContestStatus, start, end *time.Time) error {
	c := t.ledger.contests[t.contest.ID]
	c.Status = status
	c.StartTime = start
	c.EndTime = end
	t.ledger.contests[c.ID] = c
	return nil
}

func (t *memTx) SetLeaderboard(_ context.Context, ref *domain.SurfaceRef) error {
	c := t.ledger.contests[t.contest.ID]
	c.Leaderboard = ref
	t.ledger.contests[c.ID] = c
	return nil
}

func (t *memTx) AddParticipant(_ context.Context, userID string) error {
	for _, p := range t.ledger.participants[t.contest.ID] {
		if p.UserID == userID {
			return domain.ErrAlreadyJoined
		}
	}
	t.ledger.joinClock = t.ledger.joinClock.Add(time.Second)
	t.ledger.participants[t.contest.ID] = append(t.ledger.participants[t.contest.ID], domain.Participant{
		ContestID: t.contest.ID,
		UserID:    userID,
		JoinedAt:  t.ledger.joinClock,
	})
	return nil
}

func (t *memTx) RemoveParticipant(_ context.Context, userID string) error {
	list := t.ledger.participants[t.contest.ID]
	for i, p := range list {
		if p.UserID == userID {
			t.ledger.participants[t.contest.ID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return domain.ErrParticipantNotFound
}

func (t *memTx) Participants(_ context.Context) ([]domain.Participant, error) {
	return t.ledger.participantsLocked(t.contest.ID), nil
}

func (t *memTx) InsertSubmissions(_ context.Context, records []domain.SubmissionRecord) (int, error) {
	inserted := 0
	for _, r := range records {
		k := submissionKey{r.ContestID, r.UserID, r.ProblemID, r.SubmissionID}
		if _, ok := t.ledger.submissions[k]; ok {
			continue
		}
		t.ledger.submissions[k] = r
		inserted++
	}
	return inserted, nil
}

func (t *memTx) SolvedProblems(_ context.Context) (map[string][]domain.ContestProblem, error) {
	byID := make(map[string]domain.ContestProblem)
	for _, p := range t.ledger.problems[t.contest.ID] {
		byID[p.ProblemID] = p
	}
	out := make(map[string][]domain.ContestProblem)
	seen := make(map[string]bool)
	for k, rec := range t.ledger.submissions {
		if k.contestID != t.contest.ID || rec.Verdict != domain.VerdictAccepted {
			continue
		}
		p, ok := byID[k.problemID]
		if !ok || seen[k.userID+"/"+k.problemID] {
			continue
		}
		seen[k.userID+"/"+k.problemID] = true
		out[k.userID] = append(out[k.userID], p)
	}
	return out, nil
}

func (t *memTx) SetScores(_ context.Context, scores map[string]int) error {
	list := t.ledger.participants[t.contest.ID]
	for i := range list {
		if s, ok := scores[list[i].UserID]; ok {
			list[i].Score = s
		}
	}
	return nil
}

type fakeCatalog struct {
	problems []domain.Problem
	err      error
}

func (c *fakeCatalog) FetchCatalog(context.Context) ([]domain.Problem, error) {
	return c.problems, c.err
}

type fakeFeed struct {
	mu      sync.Mutex
	subs    map[string][]domain.Submission
	errs    map[string]error
	block   map[string]bool
	calls   map[string]int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		subs:  make(map[string][]domain.Submission),
		errs:  make(map[string]error),
		block: make(map[string]bool),
		calls: make(map[string]int),
	}
}

func (f *fakeFeed) FetchSubmissions(ctx context.Context, handle string) ([]domain.Submission, error) {
	f.mu.Lock()
	f.calls[handle]++
	subs, err, block := f.subs[handle], f.errs[handle], f.block[handle]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return subs, err
}

func (f *fakeFeed) add(handle string, subs ...domain.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[handle] = append(f.subs[handle], subs...)
}

type fakeSurface struct {
	mu       sync.Mutex
	next     int
	messages map[domain.SurfaceRef]domain.Rendering
	edits    int
	denied   bool
	postErr  error
	// onPost runs after a successful Post, outside the surface lock
	onPost func()
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{messages: make(map[domain.SurfaceRef]domain.Rendering)}
}

func (s *fakeSurface) Post(_ context.Context, channelID string, content domain.Rendering) (domain.SurfaceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.postErr != nil {
		return domain.SurfaceRef{}, s.postErr
	}
	s.next++
	ref := domain.SurfaceRef{ChannelID: channelID, MessageID: "m" + strconv.Itoa(s.next)}
	s.messages[ref] = content
	if hook := s.onPost; hook != nil {
		s.mu.Unlock()
		hook()
		s.mu.Lock()
	}
	return ref, nil
}

func (s *fakeSurface) Delete(_ context.Context, ref domain.SurfaceRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[ref]; !ok {
		return domain.ErrSurfaceNotFound
	}
	delete(s.messages, ref)
	return nil
}

func (s *fakeSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *fakeSurface) Edit(_ context.Context, ref domain.SurfaceRef, content domain.Rendering) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[ref]; !ok {
		return domain.ErrSurfaceNotFound
	}
	if s.denied {
		return fmt.Errorf("edit message: %w", domain.ErrPublishDenied)
	}
	s.edits++
	s.messages[ref] = content
	return nil
}

func (s *fakeSurface) get(ref domain.SurfaceRef) (domain.Rendering, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.messages[ref]
	return r, ok
}

func (s *fakeSurface) remove(ref domain.SurfaceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, ref)
}

func rating(r int) *int { return &r }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
