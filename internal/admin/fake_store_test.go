package admin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wardloop/wardloop/internal/model"
	"github.com/wardloop/wardloop/internal/store"
)

// fakeAdminStore is an in-memory stand-in for internal/store satisfying the
// admin.Store interface, used so the handler tests exercise real request
// parsing/response-shaping logic without a database.
type fakeAdminStore struct {
	mu         sync.Mutex
	alerts     map[int64]*model.Alert
	alertSeq   int64
	bans       map[string]*model.Ban
	banSeq     int64
	principals  map[int64]*model.Principal
	actions     []model.AdminAction
	forwarders  map[string]*model.ForwarderConfig
	webRequests []model.WebRequest
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{
		alerts:     make(map[int64]*model.Alert),
		bans:       make(map[string]*model.Ban),
		principals: make(map[int64]*model.Principal),
		forwarders: make(map[string]*model.ForwarderConfig),
	}
}

func (s *fakeAdminStore) addAlert(a model.Alert) *model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertSeq++
	a.ID = s.alertSeq
	if a.Status == "" {
		a.Status = model.StatusNew
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := a
	s.alerts[a.ID] = &cp
	return &cp
}

func (s *fakeAdminStore) QueryAlerts(ctx context.Context, f model.AlertFilter) ([]model.Alert, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Alert
	for _, a := range s.alerts {
		if f.Severity != nil && a.Severity != *f.Severity {
			continue
		}
		if f.Kind != nil && a.Kind != *f.Kind {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.PrincipalID != nil && (a.PrincipalID == nil || *a.PrincipalID != *f.PrincipalID) {
			continue
		}
		if f.RemoteAddress != nil && a.RemoteAddress != *f.RemoteAddress {
			continue
		}
		if f.CursorID != nil && a.ID >= *f.CursorID {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if f.Skip > 0 && f.Skip < len(out) {
		out = out[f.Skip:]
	} else if f.Skip >= len(out) {
		out = nil
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (s *fakeAdminStore) GetAlert(ctx context.Context, id int64) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAdminStore) UpdateAlertStatus(ctx context.Context, id int64, newStatus model.Status) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if a.Status.Terminal() && newStatus == model.StatusNew {
		return nil, fmt.Errorf("cannot revert alert %d from %s to NEW", id, a.Status)
	}
	a.Status = newStatus
	cp := *a
	return &cp, nil
}

func (s *fakeAdminStore) DeleteAlerts(ctx context.Context, f model.AlertFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.alerts {
		if f.Kind != nil && a.Kind != *f.Kind {
			continue
		}
		delete(s.alerts, id)
		n++
	}
	return n, nil
}

func (s *fakeAdminStore) ActiveBan(ctx context.Context, kind model.SubjectKind, subject string) (*model.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bans[string(kind)+"|"+subject]; ok && b.Active {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeAdminStore) CreateBan(ctx context.Context, kind model.SubjectKind, subject, reason string, expiresAt *time.Time) (*model.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banSeq++
	b := &model.Ban{ID: s.banSeq, SubjectKind: kind, Subject: subject, Reason: reason, ExpiresAt: expiresAt, Active: true, CreatedAt: time.Now()}
	s.bans[string(kind)+"|"+subject] = b
	cp := *b
	return &cp, nil
}

func (s *fakeAdminStore) Unban(ctx context.Context, kind model.SubjectKind, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bans[string(kind)+"|"+subject]; ok {
		b.Active = false
	}
	return nil
}

func (s *fakeAdminStore) ListPrincipals(ctx context.Context, q string, role *model.Role, active *bool, skip, limit int) ([]model.Principal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Principal
	for _, p := range s.principals {
		if role != nil && p.Role != *role {
			continue
		}
		if active != nil && p.IsActive != *active {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *fakeAdminStore) GetPrincipal(ctx context.Context, id int64) (*model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeAdminStore) SetPrincipalActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return store.ErrNotFound
	}
	p.IsActive = active
	return nil
}

func (s *fakeAdminStore) ListAdminActionsForTarget(ctx context.Context, target string, limit int) ([]model.AdminAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AdminAction
	for _, a := range s.actions {
		if a.Target == target {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeAdminStore) AppendAdminAction(ctx context.Context, actorPrincipalID *int64, kind model.AdminActionKind, target, note string) (*model.AdminAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := model.AdminAction{ID: int64(len(s.actions) + 1), ActorPrincipalID: actorPrincipalID, Kind: kind, Target: target, Note: note, CreatedAt: time.Now()}
	s.actions = append(s.actions, a)
	return &a, nil
}

func (s *fakeAdminStore) ListForwarders(ctx context.Context) ([]model.ForwarderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ForwarderConfig
	for _, f := range s.forwarders {
		out = append(out, *f)
	}
	return out, nil
}

func (s *fakeAdminStore) CreateForwarder(ctx context.Context, fc model.ForwarderConfig) (*model.ForwarderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := fc
	s.forwarders[fc.ID] = &cp
	return &cp, nil
}

func (s *fakeAdminStore) UpdateForwarder(ctx context.Context, fc model.ForwarderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forwarders[fc.ID]; !ok {
		return store.ErrNotFound
	}
	cp := fc
	s.forwarders[fc.ID] = &cp
	return nil
}

func (s *fakeAdminStore) DeleteForwarder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forwarders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.forwarders, id)
	return nil
}

func (s *fakeAdminStore) GetForwarder(ctx context.Context, id string) (*model.ForwarderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc, ok := s.forwarders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *fc
	return &cp, nil
}

func (s *fakeAdminStore) addWebRequest(wr model.WebRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wr.ID = int64(len(s.webRequests) + 1)
	s.webRequests = append(s.webRequests, wr)
}

func (s *fakeAdminStore) ListWebRequests(ctx context.Context, skip, limit int) ([]model.WebRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.WebRequest{}, s.webRequests...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if skip > 0 && skip < len(out) {
		out = out[skip:]
	} else if skip >= len(out) {
		out = nil
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *fakeAdminStore) ClearWebRequests(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.webRequests))
	s.webRequests = nil
	return n, nil
}
