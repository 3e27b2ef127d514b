package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"madcrm/api/internal/authpw"
	"madcrm/api/internal/export"
	"madcrm/api/internal/hrsync"
	"madcrm/api/internal/pipeline"
	"madcrm/api/internal/projector"
	"madcrm/api/internal/rbac"
	"madcrm/api/internal/store"
)

type dataStore interface {
	projector.Batch
	Ping(context.Context) error
	GetPartner(context.Context, int64) (store.Partner, error)
	ListPartners(context.Context, store.PartnerFilter) ([]store.Partner, int, error)
	ListPocs(context.Context, store.PocFilter) ([]store.PocRow, int, error)
	ListStates(context.Context) ([]store.State, error)
	InsertStates(context.Context, []string) (int64, error)
	ExistingStateIDs(context.Context, []int64) ([]int64, error)
	ListCities(context.Context, int64) ([]store.City, error)
	InsertCity(context.Context, store.City) (store.City, bool, error)
	ListUsersByRoles(context.Context, []string) ([]store.User, error)
}

type leadTracker interface {
	CreateLead(context.Context, pipeline.NewLead) (store.Partner, error)
	UpdateLead(context.Context, int64, pipeline.LeadUpdate) (pipeline.LeadOutcome, error)
	RenewMou(context.Context, int64, pipeline.MouRenewal) (store.Mou, error)
	Reallocate(context.Context, pipeline.Reallocation) (pipeline.ReallocationResult, error)
	DeleteOrganization(context.Context, int64, pipeline.OrganizationDelete) error
	DeleteLead(context.Context, int64) error
	UpdateOrganization(context.Context, int64, pipeline.OrganizationUpdate) error
	UpdatePoc(context.Context, int64, pipeline.PocUpdate) error
	DeletePoc(context.Context, int64) error
}

type scopeResolver interface {
	PartnerScope(ctx context.Context, role rbac.Role, userID int64) (rbac.Scope, error)
	PocIDs(ctx context.Context, scope rbac.Scope) ([]int64, error)
}

type authenticator interface {
	Login(context.Context, authpw.LoginRequest) (*authpw.LoginResult, error)
	Authenticate(context.Context, string) (store.User, error)
	Logout(ctx context.Context, userID int64, token string) error
	ForgetPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

type partnerSearch interface {
	PartnerIDs(q string) []int64
	IndexPartner(p store.Partner)
}

type reportExporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type userSyncer interface {
	Run(context.Context, hrsync.Options) (hrsync.Stats, error)
}

// Deps are the collaborators of a Service. Search, Export and Sync may be
// nil when their backends are not configured.
type Deps struct {
	Store   dataStore
	Tracker leadTracker
	Scope   scopeResolver
	Auth    authenticator
	Search  partnerSearch
	Export  reportExporter
	Sync    userSyncer
	Log     *zap.Logger
}

type Service struct {
	store     dataStore
	tracker   leadTracker
	scope     scopeResolver
	auth      authenticator
	search    partnerSearch
	export    reportExporter
	sync      userSyncer
	projector *projector.Projector
	log       *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Search == nil {
		d.Search = sqlSearch{}
	}
	return &Service{
		store:     d.Store,
		tracker:   d.Tracker,
		scope:     d.Scope,
		auth:      d.Auth,
		search:    d.Search,
		export:    d.Export,
		sync:      d.Sync,
		projector: projector.New(d.Store),
		log:       d.Log,
	}
}

// sqlSearch leaves q to the store's ILIKE filter.
type sqlSearch struct{}

func (sqlSearch) PartnerIDs(string) []int64    { return nil }
func (sqlSearch) IndexPartner(store.Partner) {}

// Actor is the authenticated caller.
type Actor struct {
	UserID int64
	Email  string
	Name   string
	Role   rbac.Role
}

func actorFromUser(u store.User) Actor {
	return Actor{UserID: u.UserID, Email: u.Email, Name: u.DisplayName, Role: rbac.Normalize(u.Role)}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ListQuery carries the list parameters shared by every listing.
type ListQuery struct {
	Page     int
	Items    int
	SortBy   string
	SortDesc bool
	Search   string
	// All disables pagination.
	All bool
}

func (q ListQuery) limit() (limit, offset int) {
	if q.All {
		return 0, 0
	}
	return q.Items, (q.Page - 1) * q.Items
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Items < 1 {
		q.Items = defaultPageSize
	}
	if q.Items > maxPageSize {
		q.Items = maxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

type Pagination struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Count int `json:"count"`
}

func paginate(q ListQuery, count int) Pagination {
	if q.All {
		return Pagination{Page: 1, Pages: 1, Count: count}
	}
	pages := (count + q.Items - 1) / q.Items
	return Pagination{Page: q.Page, Pages: pages, Count: count}
}

type PartnerPage struct {
	Result     []projector.PartnerView
	Pagination Pagination
}

// ListPartners returns one page of leads or organizations visible to actor.
func (s *Service) ListPartners(ctx context.Context, actor Actor, view string, q ListQuery) (PartnerPage, error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return PartnerPage{}, err
	}
	scope, err := s.partnerScope(ctx, actor)
	if err != nil {
		return PartnerPage{}, err
	}
	q = q.normalized()
	limit, offset := q.limit()
	filter := store.PartnerFilter{
		View:       view,
		Restricted: !scope.Unrestricted,
		PartnerIDs: scope.PartnerIDs,
		Search:     q.Search,
		SearchIDs:  s.search.PartnerIDs(q.Search),
		SortBy:     q.SortBy,
		SortDesc:   q.SortDesc,
		Limit:      limit,
		Offset:     offset,
	}
	partners, count, err := s.store.ListPartners(ctx, filter)
	if err != nil {
		return PartnerPage{}, err
	}
	views, err := s.projector.Partners(ctx, partners)
	if err != nil {
		return PartnerPage{}, fmt.Errorf("project partners: %w", err)
	}
	return PartnerPage{Result: views, Pagination: paginate(q, count)}, nil
}

// ReadPartner returns one projected partner. Partners outside the actor's
// scope are reported as missing.
func (s *Service) ReadPartner(ctx context.Context, actor Actor, partnerID int64) (projector.PartnerView, error) {
	if err := s.requirePartner(ctx, actor, rbac.ActionRead, partnerID); err != nil {
		return projector.PartnerView{}, err
	}
	partner, err := s.store.GetPartner(ctx, partnerID)
	if errors.Is(err, sql.ErrNoRows) || err == nil && partner.Removed {
		return projector.PartnerView{}, partnerNotFound()
	}
	if err != nil {
		return projector.PartnerView{}, err
	}
	views, err := s.projector.Partners(ctx, []store.Partner{partner})
	if err != nil {
		return projector.PartnerView{}, fmt.Errorf("project partner: %w", err)
	}
	return views[0], nil
}

type PocPage struct {
	Result     []projector.PocView
	Pagination Pagination
}

func (s *Service) ListPocs(ctx context.Context, actor Actor, q ListQuery) (PocPage, error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return PocPage{}, err
	}
	scope, err := s.partnerScope(ctx, actor)
	if err != nil {
		return PocPage{}, err
	}
	q = q.normalized()
	limit, offset := q.limit()
	rows, count, err := s.store.ListPocs(ctx, store.PocFilter{
		Restricted: !scope.Unrestricted,
		PartnerIDs: scope.PartnerIDs,
		Search:     q.Search,
		SortBy:     q.SortBy,
		SortDesc:   q.SortDesc,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return PocPage{}, err
	}
	return PocPage{Result: projector.Pocs(rows), Pagination: paginate(q, count)}, nil
}

// CreateLead opens a lead owned by the CO in req.
func (s *Service) CreateLead(ctx context.Context, actor Actor, req pipeline.NewLead) (projector.PartnerView, error) {
	if err := authorize(actor, rbac.ActionWrite); err != nil {
		return projector.PartnerView{}, err
	}
	partner, err := s.tracker.CreateLead(ctx, req)
	if err != nil {
		return projector.PartnerView{}, err
	}
	s.log.Info("lead created",
		zap.Int64("partner_id", partner.ID),
		zap.Int64("co_id", req.CoID),
		zap.Int64("actor_id", actor.UserID),
	)
	s.search.IndexPartner(partner)
	views, err := s.projector.Partners(ctx, []store.Partner{partner})
	if err != nil {
		return projector.PartnerView{}, fmt.Errorf("project partner: %w", err)
	}
	return views[0], nil
}

func (s *Service) UpdateLead(ctx context.Context, actor Actor, partnerID int64, upd pipeline.LeadUpdate) (pipeline.LeadOutcome, error) {
	if err := s.requirePartner(ctx, actor, rbac.ActionWrite, partnerID); err != nil {
		return pipeline.LeadOutcome{}, err
	}
	outcome, err := s.tracker.UpdateLead(ctx, partnerID, upd)
	if err != nil {
		return pipeline.LeadOutcome{}, err
	}
	s.log.Info("lead updated",
		zap.Int64("partner_id", partnerID),
		zap.String("from", outcome.From),
		zap.String("to", outcome.To),
		zap.Int64("actor_id", actor.UserID),
	)
	s.reindex(ctx, partnerID)
	return outcome, nil
}

func (s *Service) DeleteLead(ctx context.Context, actor Actor, partnerID int64) error {
	if err := s.requirePartner(ctx, actor, rbac.ActionWrite, partnerID); err != nil {
		return err
	}
	if err := s.tracker.DeleteLead(ctx, partnerID); err != nil {
		return err
	}
	s.log.Info("lead deleted", zap.Int64("partner_id", partnerID), zap.Int64("actor_id", actor.UserID))
	s.reindex(ctx, partnerID)
	return nil
}

// UpdateOrganization edits a converted partner and the POC named by
// upd.PocID. Both must be in the actor's scope.
func (s *Service) UpdateOrganization(ctx context.Context, actor Actor, partnerID int64, upd pipeline.OrganizationUpdate) error {
	if err := s.requirePartner(ctx, actor, rbac.ActionWrite, partnerID); err != nil {
		return err
	}
	if err := s.requirePoc(ctx, actor, upd.PocID); err != nil {
		return err
	}
	if err := s.tracker.UpdateOrganization(ctx, partnerID, upd); err != nil {
		return err
	}
	s.log.Info("organization updated", zap.Int64("partner_id", partnerID), zap.Int64("actor_id", actor.UserID))
	s.reindex(ctx, partnerID)
	return nil
}

func (s *Service) DeleteOrganization(ctx context.Context, actor Actor, partnerID int64, req pipeline.OrganizationDelete) error {
	if err := s.requirePartner(ctx, actor, rbac.ActionWrite, partnerID); err != nil {
		return err
	}
	if err := s.tracker.DeleteOrganization(ctx, partnerID, req); err != nil {
		return err
	}
	s.log.Info("organization deleted",
		zap.Int64("partner_id", partnerID),
		zap.String("reason", req.Reason),
		zap.Int64("actor_id", actor.UserID),
	)
	s.reindex(ctx, partnerID)
	return nil
}

func (s *Service) RenewMou(ctx context.Context, actor Actor, partnerID int64, req pipeline.MouRenewal) (store.Mou, error) {
	if err := s.requirePartner(ctx, actor, rbac.ActionWrite, partnerID); err != nil {
		return store.Mou{}, err
	}
	mou, err := s.tracker.RenewMou(ctx, partnerID, req)
	if err != nil {
		return store.Mou{}, err
	}
	s.log.Info("mou renewed", zap.Int64("partner_id", partnerID), zap.Int64("mou_id", mou.ID), zap.Int64("actor_id", actor.UserID))
	return mou, nil
}

func (s *Service) Reallocate(ctx context.Context, actor Actor, req pipeline.Reallocation) (pipeline.ReallocationResult, error) {
	if err := authorize(actor, rbac.ActionReallocate); err != nil {
		return pipeline.ReallocationResult{}, err
	}
	if err := s.requirePartner(ctx, actor, rbac.ActionWrite, req.PartnerID); err != nil {
		return pipeline.ReallocationResult{}, err
	}
	res, err := s.tracker.Reallocate(ctx, req)
	if err != nil {
		return pipeline.ReallocationResult{}, err
	}
	s.log.Info("partner reallocated",
		zap.Int64("partner_id", res.PartnerID),
		zap.Int64("new_co_id", res.NewCoUserID),
		zap.Int64("actor_id", actor.UserID),
	)
	return res, nil
}

func (s *Service) UpdatePoc(ctx context.Context, actor Actor, pocID int64, req pipeline.PocUpdate) error {
	if err := s.requirePoc(ctx, actor, pocID); err != nil {
		return err
	}
	if err := s.requirePartner(ctx, actor, rbac.ActionWrite, req.PartnerID); err != nil {
		return err
	}
	if err := s.tracker.UpdatePoc(ctx, pocID, req); err != nil {
		return err
	}
	s.log.Info("poc updated", zap.Int64("poc_id", pocID), zap.Int64("actor_id", actor.UserID))
	return nil
}

func (s *Service) DeletePoc(ctx context.Context, actor Actor, pocID int64) error {
	if err := s.requirePoc(ctx, actor, pocID); err != nil {
		return err
	}
	if err := s.tracker.DeletePoc(ctx, pocID); err != nil {
		return err
	}
	s.log.Info("poc deleted", zap.Int64("poc_id", pocID), zap.Int64("actor_id", actor.UserID))
	return nil
}

// ExportReport renders the organization report of one partner.
func (s *Service) ExportReport(ctx context.Context, actor Actor, partnerID int64, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, export.ErrPDFDependencyMissing
	}
	if err := s.requirePartner(ctx, actor, rbac.ActionRead, partnerID); err != nil {
		return nil, err
	}
	res, err := s.export.Export(ctx, export.Request{PartnerID: partnerID, Format: format})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, partnerNotFound()
	}
	return res, err
}

// reindex refreshes the search record of a partner after a write.
func (s *Service) reindex(ctx context.Context, partnerID int64) {
	partner, err := s.store.GetPartner(ctx, partnerID)
	if err != nil {
		s.log.Warn("reload partner for search", zap.Int64("partner_id", partnerID), zap.Error(err))
		return
	}
	s.search.IndexPartner(partner)
}

func (s *Service) ListStates(ctx context.Context) ([]store.State, error) {
	return s.store.ListStates(ctx)
}

// SeedStates inserts the Indian states and union territories, skipping
// names already present.
func (s *Service) SeedStates(ctx context.Context, actor Actor) ([]string, error) {
	if err := authorize(actor, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	inserted, err := s.store.InsertStates(ctx, IndianStates)
	if err != nil {
		return nil, err
	}
	s.log.Info("states seeded", zap.Int64("inserted", inserted), zap.Int64("actor_id", actor.UserID))
	return IndianStates, nil
}

func (s *Service) ListCities(ctx context.Context, stateID int64) ([]store.City, error) {
	cities, err := s.store.ListCities(ctx, stateID)
	if err != nil {
		return nil, err
	}
	if len(cities) == 0 {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No cities found for this state", nil)
	}
	return cities, nil
}

// CreateCities inserts cities whose state exists and which are not already
// present in that state.
func (s *Service) CreateCities(ctx context.Context, actor Actor, cities []store.City) ([]store.City, error) {
	if err := authorize(actor, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(cities))
	for _, c := range cities {
		ids = append(ids, c.StateID)
	}
	existing, err := s.store.ExistingStateIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	known := make(map[int64]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	var valid int
	inserted := []store.City{}
	for _, c := range cities {
		if !known[c.StateID] {
			continue
		}
		valid++
		city, created, err := s.store.InsertCity(ctx, c)
		if err != nil {
			return nil, err
		}
		if created {
			inserted = append(inserted, city)
		}
	}
	if valid == 0 {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No valid states found for provided cities", nil)
	}
	if len(inserted) == 0 {
		return nil, domainError(http.StatusConflict, "CONFLICT", "All cities already exist in the given states", nil)
	}
	s.log.Info("cities created", zap.Int("inserted", len(inserted)), zap.Int64("actor_id", actor.UserID))
	return inserted, nil
}

// ListCoUsers returns the case officers a lead can be assigned to.
func (s *Service) ListCoUsers(ctx context.Context, actor Actor) ([]store.User, error) {
	if err := authorize(actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListUsersByRoles(ctx, store.CoRoles)
}

// SyncUsers runs one HR sync on behalf of actor.
func (s *Service) SyncUsers(ctx context.Context, actor Actor, opts hrsync.Options) (hrsync.Stats, error) {
	if err := authorize(actor, rbac.ActionManageUsers); err != nil {
		return hrsync.Stats{}, err
	}
	if s.sync == nil {
		return hrsync.Stats{}, domainError(http.StatusServiceUnavailable, "SYNC_UNAVAILABLE", "User sync is not configured", nil)
	}
	started := time.Now()
	stats, err := s.sync.Run(ctx, opts)
	if err != nil {
		return stats, err
	}
	s.log.Info("user sync requested",
		zap.Int64("actor_id", actor.UserID),
		zap.Int("total", stats.Total),
		zap.Duration("took", time.Since(started)),
	)
	return stats, nil
}

// IndianStates is the seed list for the states table.
var IndianStates = []string{
	"Andhra Pradesh",
	"Arunachal Pradesh",
	"Assam",
	"Bihar",
	"Chhattisgarh",
	"Goa",
	"Gujarat",
	"Haryana",
	"Himachal Pradesh",
	"Jharkhand",
	"Karnataka",
	"Kerala",
	"Madhya Pradesh",
	"Maharashtra",
	"Manipur",
	"Meghalaya",
	"Mizoram",
	"Nagaland",
	"Odisha",
	"Punjab",
	"Rajasthan",
	"Sikkim",
	"Tamil Nadu",
	"Telangana",
	"Tripura",
	"Uttar Pradesh",
	"Uttarakhand",
	"West Bengal",
	"Andaman and Nicobar Islands",
	"Chandigarh",
	"Dadra and Nagar Haveli and Daman and Diu",
	"Lakshadweep",
	"Delhi",
	"Puducherry",
	"Ladakh",
	"Jammu and Kashmir",
}
