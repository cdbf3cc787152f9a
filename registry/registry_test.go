package registry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/memberqr/notify"
	"github.com/openclaw/memberqr/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory MemberStore with a unique identifier constraint.
// With blindLookup set, FindByIdentifier never sees stored members, which
// stands in for a concurrent registration inserting between check and insert.
type memStore struct {
	mu          sync.Mutex
	members     map[string]store.Member
	order       []string
	lookups     int
	lookupDelay time.Duration
	lookupErr   error
	blindLookup bool
}

func newMemStore() *memStore {
	return &memStore{members: make(map[string]store.Member)}
}

func (s *memStore) FindByIdentifier(ctx context.Context, id string) (*store.Member, error) {
	if s.lookupDelay > 0 {
		time.Sleep(s.lookupDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	m, ok := s.members[id]
	if !ok || s.blindLookup {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *memStore) Insert(ctx context.Context, m *store.Member) (*store.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.MemberID]; ok {
		return nil, store.ErrDuplicateIdentifier
	}
	stored := *m
	stored.ID = int64(len(s.members) + 1)
	stored.CreatedAt = time.Now().UTC()
	s.members[m.MemberID] = stored
	s.order = append(s.order, m.MemberID)
	return &stored, nil
}

func (s *memStore) List(ctx context.Context) ([]store.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Member, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.members[s.order[i]])
	}
	return out, nil
}

func (s *memStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members), nil
}

// symbols returns random bytes that map to the given identifiers, one
// 16-byte read per identifier.
func symbols(ids ...string) io.Reader {
	var buf bytes.Buffer
	for _, id := range ids {
		chunk := make([]byte, IdentifierLength*2)
		for i := 0; i < IdentifierLength; i++ {
			chunk[i] = byte(strings.IndexByte(Alphabet, id[i]))
		}
		buf.Write(chunk)
	}
	return &buf
}

func assertIdentifier(t *testing.T, id string) {
	t.Helper()
	assert.Len(t, id, IdentifierLength)
	for _, r := range id {
		assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected symbol %q in %s", r, id)
	}
}

func TestAllocateManyUnique(t *testing.T) {
	st := newMemStore()
	alloc := NewAllocator(st, nil, discardLogger())
	ctx := context.Background()

	const n = 20000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id, err := alloc.Allocate(ctx)
		require.NoError(t, err)
		assertIdentifier(t, id)

		_, dup := seen[id]
		require.False(t, dup, "duplicate identifier %s", id)
		seen[id] = struct{}{}

		_, err = st.Insert(ctx, &store.Member{MemberID: id})
		require.NoError(t, err)
	}
}

func TestAllocateUsesWholeAlphabet(t *testing.T) {
	alloc := NewAllocator(newMemStore(), nil, discardLogger())

	counts := make(map[rune]int)
	for i := 0; i < 2000; i++ {
		id, err := alloc.Allocate(context.Background())
		require.NoError(t, err)
		for _, r := range id {
			counts[r]++
		}
	}
	assert.Len(t, counts, len(Alphabet))
}

func TestAllocateSkipsTakenIdentifier(t *testing.T) {
	st := newMemStore()
	_, err := st.Insert(context.Background(), &store.Member{MemberID: "ABCD1234"})
	require.NoError(t, err)

	alloc := NewAllocator(st, symbols("ABCD1234", "ABCD1234", "EEEE5555"), discardLogger())
	id, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EEEE5555", id)
	assert.Equal(t, 3, st.lookups)
}

func TestAllocateNeverReturnsStoredIdentifier(t *testing.T) {
	st, err := store.NewMemberStore(filepath.Join(t.TempDir(), "members.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	_, err = st.Insert(ctx, &store.Member{MemberID: "ABCD1234", Name: "A", Contact: "a", BloodGroup: "A+"})
	require.NoError(t, err)

	alloc := NewAllocator(st, symbols("ABCD1234", "ZZZZ0000"), discardLogger())
	id, err := alloc.Allocate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ZZZZ0000", id)
}

func TestAllocateDiscardsBiasedBytes(t *testing.T) {
	raw := []byte{255, 254, 253, 252, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	alloc := NewAllocator(newMemStore(), bytes.NewReader(raw), discardLogger())

	id, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAA", id)
}

func TestAllocatePropagatesStorageError(t *testing.T) {
	st := newMemStore()
	st.lookupErr = errors.New("database is locked")

	_, err := NewAllocator(st, nil, discardLogger()).Allocate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, st.lookupErr)
	assert.Equal(t, 1, st.lookups, "storage failures are not retried")
}

func TestAllocateRandomSourceFailure(t *testing.T) {
	_, err := NewAllocator(newMemStore(), bytes.NewReader(nil), discardLogger()).Allocate(context.Background())
	assert.Error(t, err)
}

// Two allocations racing between check and insert can pick the same
// candidate. This is accepted; the store's unique constraint settles it.
func TestConcurrentAllocationsMayCollide(t *testing.T) {
	st := newMemStore()
	st.lookupDelay = 20 * time.Millisecond

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := NewAllocator(st, symbols("SAME0001"), discardLogger()).Allocate(context.Background())
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, ids[0], ids[1])

	_, err := st.Insert(context.Background(), &store.Member{MemberID: ids[0]})
	require.NoError(t, err)
	_, err = st.Insert(context.Background(), &store.Member{MemberID: ids[1]})
	assert.ErrorIs(t, err, store.ErrDuplicateIdentifier)
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("ABCD1234"))
	assert.False(t, ValidIdentifier("abcd1234"))
	assert.False(t, ValidIdentifier("ABCD123"))
	assert.False(t, ValidIdentifier("ABCD-234"))
	assert.Equal(t, "ABCD1234", NormalizeIdentifier("  abcd1234 "))
}

// --- Service ----------------------------------------------------------------

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []*notify.WebhookPayload
	ctxErrs  []error
	err      error
}

func (n *recordingNotifier) Send(ctx context.Context, p *notify.WebhookPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	return n.err
}

func newService(st *memStore, source io.Reader) *Service {
	log := discardLogger()
	return &Service{
		Store:     st,
		Allocator: NewAllocator(st, source, log),
		Log:       log,
	}
}

func TestRegister(t *testing.T) {
	st := newMemStore()
	n := &recordingNotifier{}
	svc := newService(st, nil)
	svc.Notifier = n
	svc.BaseURL = "https://members.example.com"

	m, err := svc.Register(context.Background(), NewMember{Name: " Asha ", Contact: "asha@example.com", BloodGroup: "o +"})
	require.NoError(t, err)
	assertIdentifier(t, m.MemberID)
	assert.Equal(t, "Asha", m.Name)
	assert.Equal(t, "O+", m.BloodGroup)
	assert.NotZero(t, m.ID)

	got, err := svc.Lookup(context.Background(), strings.ToLower(m.MemberID))
	require.NoError(t, err)
	assert.Equal(t, m.MemberID, got.MemberID)

	svc.Wait()
	require.Len(t, n.payloads, 1)
	assert.Equal(t, notify.EventMemberRegistered, n.payloads[0].Event)
	assert.Equal(t, "https://members.example.com/profile/"+m.MemberID, n.payloads[0].ProfileURL)
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(newMemStore(), nil)

	for name, in := range map[string]NewMember{
		"missing name":        {Contact: "c", BloodGroup: "A+"},
		"blank name":          {Name: "   ", Contact: "c", BloodGroup: "A+"},
		"missing contact":     {Name: "n", BloodGroup: "A+"},
		"missing blood group": {Name: "n", Contact: "c"},
		"unknown blood group": {Name: "n", Contact: "c", BloodGroup: "Z+"},
	} {
		_, err := svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidMember, name)
	}
}

func TestRegisterRetriesOnceAfterInsertConflict(t *testing.T) {
	st := newMemStore()
	_, err := st.Insert(context.Background(), &store.Member{MemberID: "RACE0000"})
	require.NoError(t, err)
	st.blindLookup = true

	svc := newService(st, symbols("RACE0000", "FRESH001"))
	m, err := svc.Register(context.Background(), NewMember{Name: "n", Contact: "c", BloodGroup: "B-"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH001", m.MemberID)
}

func TestRegisterGivesUpAfterSecondConflict(t *testing.T) {
	st := newMemStore()
	_, err := st.Insert(context.Background(), &store.Member{MemberID: "RACE0000"})
	require.NoError(t, err)
	st.blindLookup = true

	svc := newService(st, symbols("RACE0000", "RACE0000", "FRESH001"))
	_, err = svc.Register(context.Background(), NewMember{Name: "n", Contact: "c", BloodGroup: "B-"})
	assert.ErrorIs(t, err, store.ErrDuplicateIdentifier)
}

func TestRegisterSurvivesNotifierFailure(t *testing.T) {
	svc := newService(newMemStore(), nil)
	n := &recordingNotifier{err: errors.New("webhook down")}
	svc.Notifier = n

	_, err := svc.Register(context.Background(), NewMember{Name: "n", Contact: "c", BloodGroup: "AB+"})
	assert.NoError(t, err)
	svc.Wait()
	assert.Len(t, n.payloads, 1)
}

func TestRegisterProfileURLFromRequestBase(t *testing.T) {
	n := &recordingNotifier{}
	svc := newService(newMemStore(), nil)
	svc.Notifier = n

	m, err := svc.Register(context.Background(), NewMember{
		Name: "n", Contact: "c", BloodGroup: "A-", ProfileBase: "http://localhost:5001/",
	})
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, n.payloads, 1)
	assert.Equal(t, "http://localhost:5001/profile/"+m.MemberID, n.payloads[0].ProfileURL)
}

func TestRegisterWithoutBaseOmitsProfileURL(t *testing.T) {
	n := &recordingNotifier{}
	svc := newService(newMemStore(), nil)
	svc.Notifier = n

	_, err := svc.Register(context.Background(), NewMember{Name: "n", Contact: "c", BloodGroup: "A-"})
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, n.payloads, 1)
	assert.Empty(t, n.payloads[0].ProfileURL)
}

func TestNotificationOutlivesCancelledRequest(t *testing.T) {
	n := &recordingNotifier{}
	svc := newService(newMemStore(), nil)
	svc.Notifier = n

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Register(ctx, NewMember{Name: "n", Contact: "c", BloodGroup: "O-"})
	require.NoError(t, err)
	cancel()
	svc.Wait()

	require.Len(t, n.ctxErrs, 1)
	assert.NoError(t, n.ctxErrs[0])
}

func TestLookupNotFound(t *testing.T) {
	st := newMemStore()
	svc := newService(st, nil)

	_, err := svc.Lookup(context.Background(), "NOPE0000")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Lookup(context.Background(), "../etc")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, st.lookups, "malformed identifiers never reach the store")
}

func TestListNewestFirst(t *testing.T) {
	svc := newService(newMemStore(), symbols("FIRST001", "SECOND02"))
	ctx := context.Background()

	_, err := svc.Register(ctx, NewMember{Name: "a", Contact: "c", BloodGroup: "A+"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, NewMember{Name: "b", Contact: "c", BloodGroup: "A+"})
	require.NoError(t, err)

	members, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "SECOND02", members[0].MemberID)
	assert.Equal(t, "FIRST001", members[1].MemberID)
}
