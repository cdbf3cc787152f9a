package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/memberqr/metrics"
	"github.com/openclaw/memberqr/notify"
	"github.com/openclaw/memberqr/store"
)

// ErrInvalidMember wraps every validation failure of a registration.
var ErrInvalidMember = errors.New("invalid member")

// BloodGroups lists the accepted blood group values.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// MemberStore is the storage the registration service works against.
type MemberStore interface {
	IdentifierLookup
	Insert(ctx context.Context, m *store.Member) (*store.Member, error)
	List(ctx context.Context) ([]store.Member, error)
	Count(ctx context.Context) (int, error)
}

// Notifier receives an event for every registered member.
type Notifier interface {
	Send(ctx context.Context, payload *notify.WebhookPayload) error
}

// NewMember is the data submitted to register a member.
type NewMember struct {
	Name       string `json:"name"`
	Contact    string `json:"contact"`
	BloodGroup string `json:"blood_group"`

	// ProfileBase is the external base URL the registration was made
	// through. It overrides Service.BaseURL in the notification.
	ProfileBase string `json:"-"`
}

func (n NewMember) normalize() (store.Member, error) {
	m := store.Member{
		Name:       strings.TrimSpace(n.Name),
		Contact:    strings.TrimSpace(n.Contact),
		BloodGroup: strings.ToUpper(strings.ReplaceAll(n.BloodGroup, " ", "")),
	}
	switch {
	case m.Name == "":
		return m, fmt.Errorf("%w: name is required", ErrInvalidMember)
	case m.Contact == "":
		return m, fmt.Errorf("%w: contact is required", ErrInvalidMember)
	case m.BloodGroup == "":
		return m, fmt.Errorf("%w: blood group is required", ErrInvalidMember)
	case !slices.Contains(BloodGroups, m.BloodGroup):
		return m, fmt.Errorf("%w: unknown blood group %q", ErrInvalidMember, n.BloodGroup)
	}
	return m, nil
}

// Service registers and looks up members.
type Service struct {
	Store     MemberStore
	Allocator *Allocator
	Notifier  Notifier // optional
	BaseURL   string   // optional, used for the profile URL in notifications
	Log       *slog.Logger

	pending sync.WaitGroup
}

// Register validates in, allocates an identifier and stores the member. An
// identifier taken between allocation and insert is re-allocated once.
func (s *Service) Register(ctx context.Context, in NewMember) (*store.Member, error) {
	m, err := in.normalize()
	if err != nil {
		return nil, err
	}

	stored, err := s.allocateAndInsert(ctx, m)
	if errors.Is(err, store.ErrDuplicateIdentifier) {
		s.Log.Warn("identifier taken at insert, allocating again", "error", err)
		metrics.RegistrationRetry()
		stored, err = s.allocateAndInsert(ctx, m)
	}
	if err != nil {
		return nil, fmt.Errorf("register member: %w", err)
	}

	metrics.MemberRegistered()
	s.Log.Info("member registered", "member_id", stored.MemberID)
	s.notify(ctx, stored, in.ProfileBase)
	return stored, nil
}

func (s *Service) allocateAndInsert(ctx context.Context, m store.Member) (*store.Member, error) {
	id, err := s.Allocator.Allocate(ctx)
	if err != nil {
		return nil, err
	}
	m.MemberID = id
	return s.Store.Insert(ctx, &m)
}

// notify delivers the registration event in the background. Delivery is
// detached from ctx cancellation so a client hanging up after the insert
// does not drop the event.
func (s *Service) notify(ctx context.Context, m *store.Member, profileBase string) {
	if s.Notifier == nil {
		return
	}
	if profileBase == "" {
		profileBase = s.BaseURL
	}
	payload := &notify.WebhookPayload{
		Event:      notify.EventMemberRegistered,
		MemberID:   m.MemberID,
		Name:       m.Name,
		BloodGroup: m.BloodGroup,
		Timestamp:  time.Now().Unix(),
	}
	if profileBase != "" {
		payload.ProfileURL = strings.TrimSuffix(profileBase, "/") + "/profile/" + m.MemberID
	}

	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.Notifier.Send(ctx, payload); err != nil {
			s.Log.Warn("registration notification failed", "member_id", m.MemberID, "error", err)
		}
	}()
}

// Wait blocks until all in-flight notifications have been delivered.
func (s *Service) Wait() {
	s.pending.Wait()
}

// Lookup returns the member with the given identifier. Unknown or malformed
// identifiers yield store.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, memberID string) (*store.Member, error) {
	id := NormalizeIdentifier(memberID)
	if !ValidIdentifier(id) {
		return nil, store.ErrNotFound
	}
	return s.Store.FindByIdentifier(ctx, id)
}

// List returns all members, newest first.
func (s *Service) List(ctx context.Context) ([]store.Member, error) {
	return s.Store.List(ctx)
}

// Count returns the number of registered members.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.Store.Count(ctx)
}
