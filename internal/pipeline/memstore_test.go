package pipeline

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"madcrm/api/internal/store"
)

// memStore is an in-memory Store. A failing transaction restores the state
// captured when it began.
type memStore struct {
	mu    sync.Mutex
	clock time.Time
	state memState
}

type memState struct {
	partners   map[int64]store.Partner
	agreements []store.PartnerAgreement
	pocs       map[int64]store.Poc
	links      []store.PocLink
	meetings   []store.Meeting
	mous       []store.Mou
	cos        []store.CoAssignment
	users      []store.User
	nextID     int64
	locks      []int64
}

func newMemStore() *memStore {
	return &memStore{
		clock: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		state: memState{partners: map[int64]store.Partner{}, pocs: map[int64]store.Poc{}},
	}
}

func (s memState) clone() memState {
	c := s
	c.partners = map[int64]store.Partner{}
	for k, v := range s.partners {
		c.partners[k] = v
	}
	c.pocs = map[int64]store.Poc{}
	for k, v := range s.pocs {
		c.pocs[k] = v
	}
	c.agreements = append([]store.PartnerAgreement(nil), s.agreements...)
	c.links = append([]store.PocLink(nil), s.links...)
	c.meetings = append([]store.Meeting(nil), s.meetings...)
	c.mous = append([]store.Mou(nil), s.mous...)
	c.cos = append([]store.CoAssignment(nil), s.cos...)
	c.users = append([]store.User(nil), s.users...)
	c.locks = append([]int64(nil), s.locks...)
	return c
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := s.state.clone()
	if err := fn(memTx{s}); err != nil {
		s.state = saved
		return err
	}
	return nil
}

type memTx struct {
	s *memStore
}

func (t memTx) id() int64 {
	t.s.state.nextID++
	return t.s.state.nextID
}

func (t memTx) tick() time.Time {
	t.s.clock = t.s.clock.Add(time.Second)
	return t.s.clock
}

func (t memTx) LockPartner(_ context.Context, partnerID int64) error {
	t.s.state.locks = append(t.s.state.locks, partnerID)
	return nil
}

func (t memTx) GetPartner(_ context.Context, partnerID int64) (store.Partner, error) {
	p, ok := t.s.state.partners[partnerID]
	if !ok {
		return store.Partner{}, sql.ErrNoRows
	}
	return p, nil
}

func (t memTx) InsertPartner(_ context.Context, p store.Partner) (store.Partner, error) {
	p.ID = t.id()
	p.CreatedAt = t.tick()
	p.UpdatedAt = p.CreatedAt
	t.s.state.partners[p.ID] = p
	return p, nil
}

func (t memTx) UpdatePartner(_ context.Context, p store.Partner) error {
	p.UpdatedAt = t.tick()
	t.s.state.partners[p.ID] = p
	return nil
}

func (t memTx) SoftDeletePartner(_ context.Context, partnerID int64) error {
	p, ok := t.s.state.partners[partnerID]
	if !ok {
		return sql.ErrNoRows
	}
	p.Removed = true
	t.s.state.partners[partnerID] = p
	return nil
}

func (t memTx) TouchPartner(_ context.Context, partnerID int64) error {
	p := t.s.state.partners[partnerID]
	p.UpdatedAt = t.tick()
	t.s.state.partners[partnerID] = p
	return nil
}

func (t memTx) LatestAgreement(_ context.Context, partnerID int64) (*store.PartnerAgreement, error) {
	var latest *store.PartnerAgreement
	for i := range t.s.state.agreements {
		a := t.s.state.agreements[i]
		if a.PartnerID == partnerID {
			latest = &a
		}
	}
	return latest, nil
}

func (t memTx) AppendAgreement(_ context.Context, a store.PartnerAgreement) (store.PartnerAgreement, error) {
	a.ID = t.id()
	a.CreatedAt = t.tick()
	t.s.state.agreements = append(t.s.state.agreements, a)
	return a, nil
}

func (t memTx) InsertPoc(_ context.Context, p store.Poc) (store.Poc, error) {
	p.ID = t.id()
	p.CreatedAt = t.tick()
	t.s.state.pocs[p.ID] = p
	return p, nil
}

func (t memTx) LinkPoc(_ context.Context, pocID, partnerID int64) error {
	t.s.state.links = append(t.s.state.links, store.PocLink{ID: t.id(), PocID: pocID, PartnerID: partnerID, CreatedAt: t.tick()})
	return nil
}

func (t memTx) GetPoc(_ context.Context, pocID int64) (store.Poc, error) {
	p, ok := t.s.state.pocs[pocID]
	if !ok {
		return store.Poc{}, sql.ErrNoRows
	}
	return p, nil
}

func (t memTx) UpdatePoc(_ context.Context, p store.Poc) error {
	if _, ok := t.s.state.pocs[p.ID]; !ok {
		return sql.ErrNoRows
	}
	t.s.state.pocs[p.ID] = p
	return nil
}

func (t memTx) SoftDeletePoc(_ context.Context, pocID int64) error {
	p, ok := t.s.state.pocs[pocID]
	if !ok {
		return sql.ErrNoRows
	}
	p.Removed = true
	t.s.state.pocs[pocID] = p
	return nil
}

func (t memTx) LatestActivePoc(_ context.Context, partnerID int64) (*store.Poc, error) {
	var latest *store.Poc
	for _, p := range t.s.state.pocs {
		if p.Removed || p.PartnerID == nil || *p.PartnerID != partnerID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			p := p
			latest = &p
		}
	}
	return latest, nil
}

func (t memTx) InsertMeeting(_ context.Context, m store.Meeting) (store.Meeting, error) {
	m.ID = t.id()
	m.CreatedAt = t.tick()
	t.s.state.meetings = append(t.s.state.meetings, m)
	return m, nil
}

func (t memTx) InsertMou(_ context.Context, m store.Mou) (store.Mou, error) {
	m.ID = t.id()
	m.CreatedAt = t.tick()
	t.s.state.mous = append(t.s.state.mous, m)
	return m, nil
}

func (t memTx) GetMou(_ context.Context, mouID int64) (store.Mou, error) {
	for _, m := range t.s.state.mous {
		if m.ID == mouID {
			return m, nil
		}
	}
	return store.Mou{}, sql.ErrNoRows
}

func (t memTx) DeactivateMous(_ context.Context, partnerID int64) (int64, error) {
	var n int64
	for i, m := range t.s.state.mous {
		if m.PartnerID == partnerID && m.MouStatus == store.MouActive {
			t.s.state.mous[i].MouStatus = store.MouInactive
			n++
		}
	}
	return n, nil
}

func (t memTx) AssignCo(_ context.Context, partnerID, coID int64) (store.CoAssignment, error) {
	a := store.CoAssignment{ID: t.id(), PartnerID: partnerID, CoID: coID, CreatedAt: t.tick()}
	t.s.state.cos = append(t.s.state.cos, a)
	return a, nil
}

func (t memTx) LatestCo(_ context.Context, partnerID int64) (*store.CoAssignment, error) {
	var latest *store.CoAssignment
	for i := range t.s.state.cos {
		a := t.s.state.cos[i]
		if a.PartnerID == partnerID {
			latest = &a
		}
	}
	return latest, nil
}

func (t memTx) GetUserByLogin(_ context.Context, login string) (store.User, error) {
	for _, u := range t.s.state.users {
		if strings.EqualFold(u.UserLogin, login) {
			return u, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

// helpers for assertions

func (s *memStore) stages(partnerID int64) []string {
	var out []string
	for _, a := range s.state.agreements {
		if a.PartnerID == partnerID {
			out = append(out, a.ConversionStage)
		}
	}
	return out
}

func (s *memStore) activeMous(partnerID int64) []store.Mou {
	var out []store.Mou
	for _, m := range s.state.mous {
		if m.PartnerID == partnerID && m.MouStatus == store.MouActive {
			out = append(out, m)
		}
	}
	return out
}
