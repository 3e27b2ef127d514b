// Package pipeline moves partners through the conversion stages. Every
// operation runs in one transaction that first takes the partner's
// advisory lock, so the latest stage it reads cannot change underneath it.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"madcrm/api/internal/store"
)

// Tx is the slice of the entity store a transition needs.
type Tx interface {
	LockPartner(ctx context.Context, partnerID int64) error
	GetPartner(ctx context.Context, partnerID int64) (store.Partner, error)
	InsertPartner(ctx context.Context, p store.Partner) (store.Partner, error)
	UpdatePartner(ctx context.Context, p store.Partner) error
	SoftDeletePartner(ctx context.Context, partnerID int64) error
	TouchPartner(ctx context.Context, partnerID int64) error
	LatestAgreement(ctx context.Context, partnerID int64) (*store.PartnerAgreement, error)
	AppendAgreement(ctx context.Context, a store.PartnerAgreement) (store.PartnerAgreement, error)
	InsertPoc(ctx context.Context, p store.Poc) (store.Poc, error)
	LinkPoc(ctx context.Context, pocID, partnerID int64) error
	GetPoc(ctx context.Context, pocID int64) (store.Poc, error)
	UpdatePoc(ctx context.Context, p store.Poc) error
	SoftDeletePoc(ctx context.Context, pocID int64) error
	LatestActivePoc(ctx context.Context, partnerID int64) (*store.Poc, error)
	InsertMeeting(ctx context.Context, m store.Meeting) (store.Meeting, error)
	InsertMou(ctx context.Context, m store.Mou) (store.Mou, error)
	GetMou(ctx context.Context, mouID int64) (store.Mou, error)
	DeactivateMous(ctx context.Context, partnerID int64) (int64, error)
	AssignCo(ctx context.Context, partnerID, coID int64) (store.CoAssignment, error)
	LatestCo(ctx context.Context, partnerID int64) (*store.CoAssignment, error)
	GetUserByLogin(ctx context.Context, login string) (store.User, error)
}

type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Uploader stores a document and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, folder, filename, contentType string) (string, error)
}

// Recorder observes committed stage rows.
type Recorder interface {
	StageAppended(stage string)
}

type nopRecorder struct{}

func (nopRecorder) StageAppended(string) {}

const mouFolder = "mou_documents"

type Tracker struct {
	store    Store
	uploader Uploader
	recorder Recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewTracker(s Store, uploader Uploader, recorder Recorder, log *zap.Logger) *Tracker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{store: s, uploader: uploader, recorder: recorder, log: log, now: time.Now}
}

type postgresStore struct {
	pg *store.PostgresStore
}

// FromPostgres adapts the entity store to the tracker's transaction shape.
func FromPostgres(pg *store.PostgresStore) Store {
	return postgresStore{pg: pg}
}

func (s postgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	return s.pg.InTx(ctx, func(q *store.Queries) error { return fn(q) })
}

// inPartnerTx locks partnerID, runs fn and records the stages fn appended
// once the transaction has committed.
func (t *Tracker) inPartnerTx(ctx context.Context, partnerID int64, fn func(tx Tx, appended *[]string) error) error {
	var appended []string
	err := t.store.InTx(ctx, func(tx Tx) error {
		appended = appended[:0]
		if err := tx.LockPartner(ctx, partnerID); err != nil {
			return err
		}
		return fn(tx, &appended)
	})
	if err != nil {
		return err
	}
	for _, stage := range appended {
		t.recorder.StageAppended(stage)
	}
	return nil
}

func (t *Tracker) upload(ctx context.Context, doc *Document) (string, error) {
	if t.uploader == nil {
		return "", upstream(msgUploadFailed, errors.New("no document storage configured"))
	}
	name := doc.Name
	if strings.TrimSpace(name) == "" {
		name = "mou-document.pdf"
	}
	url, err := t.uploader.Upload(ctx, doc.Data, mouFolder, name, doc.ContentType)
	if err != nil {
		t.log.Error("mou upload failed", zap.String("filename", name), zap.Error(err))
		return "", upstream(msgUploadFailed, err)
	}
	return url, nil
}

func getPartner(ctx context.Context, tx Tx, partnerID int64, missing string) (store.Partner, error) {
	p, err := tx.GetPartner(ctx, partnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Partner{}, notFound(missing)
	}
	if err != nil {
		return store.Partner{}, fmt.Errorf("load partner: %w", err)
	}
	return p, nil
}

// getLivePartner is getPartner for writes that must not touch a
// soft-deleted partner.
func getLivePartner(ctx context.Context, tx Tx, partnerID int64) (store.Partner, error) {
	p, err := getPartner(ctx, tx, partnerID, msgPartnerGone)
	if err != nil {
		return store.Partner{}, err
	}
	if p.Removed {
		return store.Partner{}, notFound(msgPartnerGone)
	}
	return p, nil
}

// CreateLead inserts a partner with its first CO assignment and first
// agreement row.
func (t *Tracker) CreateLead(ctx context.Context, req NewLead) (store.Partner, error) {
	stage := req.ConversionStage
	if stage == "" {
		stage = store.StageNew
	}
	coID := req.CoID
	p := store.Partner{CreatedBy: &coID}
	req.Partner.apply(&p)
	if p.LowIncomeResource == nil {
		no := false
		p.LowIncomeResource = &no
	}

	var created store.Partner
	err := t.store.InTx(ctx, func(tx Tx) error {
		var err error
		created, err = tx.InsertPartner(ctx, p)
		if err != nil {
			return err
		}
		if _, err := tx.AssignCo(ctx, created.ID, coID); err != nil {
			return err
		}
		_, err = tx.AppendAgreement(ctx, store.PartnerAgreement{PartnerID: created.ID, ConversionStage: stage})
		return err
	})
	if err != nil {
		return store.Partner{}, err
	}
	t.recorder.StageAppended(stage)
	t.log.Info("lead created", zap.Int64("partner_id", created.ID), zap.Int64("co_id", coID))
	return created, nil
}

// UpdateLead applies partner edits and, when the requested stage differs
// from the latest one, runs the transition for the requested stage.
func (t *Tracker) UpdateLead(ctx context.Context, partnerID int64, upd LeadUpdate) (LeadOutcome, error) {
	var outcome LeadOutcome
	err := t.inPartnerTx(ctx, partnerID, func(tx Tx, appended *[]string) error {
		partner, err := getLivePartner(ctx, tx, partnerID)
		if err != nil {
			return err
		}

		latest, err := tx.LatestAgreement(ctx, partnerID)
		if err != nil {
			return err
		}
		from := store.StageNew
		if latest != nil {
			from = latest.ConversionStage
		}
		outcome = LeadOutcome{From: from, To: from}

		changing := upd.Stage != "" && upd.Stage != from
		if changing {
			if err := CanTransition(TransitionContext{From: from, To: upd.Stage, Update: upd}).Error(); err != nil {
				return err
			}
		}

		upd.Partner.apply(&partner)
		if err := tx.UpdatePartner(ctx, partner); err != nil {
			return err
		}
		if !changing {
			return nil
		}

		if err := transitions[upd.Stage].apply(ctx, step{t: t, tx: tx, partner: partner, update: upd, appended: appended}); err != nil {
			return err
		}
		outcome.To = upd.Stage
		outcome.Converted = upd.Stage == store.StageConverted
		return nil
	})
	if err != nil {
		return LeadOutcome{}, err
	}
	if outcome.From != outcome.To {
		t.log.Info("lead stage changed",
			zap.Int64("partner_id", partnerID),
			zap.String("from", outcome.From),
			zap.String("to", outcome.To),
		)
	}
	return outcome, nil
}

// RenewMou replaces the active MOU with a newly signed one and records the
// renewal in the agreement history.
func (t *Tracker) RenewMou(ctx context.Context, partnerID int64, req MouRenewal) (store.Mou, error) {
	var created store.Mou
	err := t.inPartnerTx(ctx, partnerID, func(tx Tx, appended *[]string) error {
		if _, err := getLivePartner(ctx, tx, partnerID); err != nil {
			return err
		}
		if req.Document == nil || len(req.Document.Data) == 0 {
			return invalid(msgDocumentRequired)
		}
		url, err := t.upload(ctx, req.Document)
		if err != nil {
			return err
		}

		if _, err := tx.DeactivateMous(ctx, partnerID); err != nil {
			return err
		}
		signDate, startDate, endDate, count := req.SignDate, req.StartDate, req.EndDate, req.ConfirmedChildCount
		created, err = tx.InsertMou(ctx, store.Mou{
			PartnerID:           partnerID,
			MouSign:             true,
			MouSignDate:         &signDate,
			MouStartDate:        &startDate,
			MouEndDate:          &endDate,
			MouURL:              &url,
			MouStatus:           store.MouActive,
			ConfirmedChildCount: &count,
		})
		if err != nil {
			return err
		}

		status := statusRenewed
		if _, err := tx.AppendAgreement(ctx, store.PartnerAgreement{
			PartnerID:       partnerID,
			ConversionStage: store.StageConverted,
			CurrentStatus:   &status,
		}); err != nil {
			return err
		}
		*appended = append(*appended, store.StageConverted)
		return nil
	})
	if err != nil {
		return store.Mou{}, err
	}
	t.log.Info("mou renewed", zap.Int64("partner_id", partnerID), zap.Int64("mou_id", created.ID))
	return created, nil
}

// Reallocate hands a partner from its active CO to another CO and books a
// meeting for the new CO with the partner's latest POC.
func (t *Tracker) Reallocate(ctx context.Context, req Reallocation) (ReallocationResult, error) {
	currentLogin := strings.ToLower(strings.TrimSpace(req.CurrentCoUserLogin))
	newLogin := strings.ToLower(strings.TrimSpace(req.NewCoUserLogin))

	var result ReallocationResult
	err := t.inPartnerTx(ctx, req.PartnerID, func(tx Tx, _ *[]string) error {
		if _, err := getLivePartner(ctx, tx, req.PartnerID); err != nil {
			return err
		}

		currentCo, err := userByLogin(ctx, tx, currentLogin, msgCurrentCoNotFound)
		if err != nil {
			return err
		}
		newCo, err := userByLogin(ctx, tx, newLogin, msgNewCoNotFound)
		if err != nil {
			return err
		}

		active, err := tx.LatestCo(ctx, req.PartnerID)
		if err != nil {
			return err
		}
		guard := ReallocationContext{CurrentCoID: currentCo.UserID, NewCoID: newCo.UserID}
		if active != nil {
			guard.ActiveCoID = &active.CoID
		}
		if err := CanReallocate(guard).Error(); err != nil {
			return err
		}

		if _, err := tx.AssignCo(ctx, req.PartnerID, newCo.UserID); err != nil {
			return err
		}

		poc, err := tx.LatestActivePoc(ctx, req.PartnerID)
		if err != nil {
			return err
		}
		if poc == nil {
			return notFound(msgNoActivePoc)
		}

		meetingDate := t.now()
		if req.MeetingDate != nil {
			meetingDate = *req.MeetingDate
		}
		newCoID, pocID := newCo.UserID, poc.ID
		meeting, err := tx.InsertMeeting(ctx, store.Meeting{
			UserID:      &newCoID,
			PocID:       &pocID,
			PartnerID:   req.PartnerID,
			MeetingDate: &meetingDate,
		})
		if err != nil {
			return err
		}
		if err := tx.TouchPartner(ctx, req.PartnerID); err != nil {
			return err
		}

		result = ReallocationResult{
			PartnerID:      req.PartnerID,
			NewCoUserID:    newCo.UserID,
			NewCoUserLogin: newCo.UserLogin,
			PocID:          poc.ID,
			MeetingID:      meeting.ID,
		}
		return nil
	})
	if err != nil {
		return ReallocationResult{}, err
	}
	t.log.Info("partner reallocated",
		zap.Int64("partner_id", req.PartnerID),
		zap.String("from", currentLogin),
		zap.String("to", newLogin),
	)
	return result, nil
}

func userByLogin(ctx context.Context, tx Tx, login, missing string) (store.User, error) {
	if login == "" {
		return store.User{}, notFound(missing)
	}
	u, err := tx.GetUserByLogin(ctx, login)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, notFound(missing)
	}
	if err != nil {
		return store.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// DeleteOrganization soft-deletes the partner, appends a dropped row with
// the reason and deactivates its MOUs. Repeated calls append again.
func (t *Tracker) DeleteOrganization(ctx context.Context, partnerID int64, req OrganizationDelete) error {
	if err := CanDeleteOrganization(req).Error(); err != nil {
		return err
	}
	return t.softDelete(ctx, partnerID, req.Reason, req.Remarks, msgOrganizationNotFound)
}

// DeleteLead soft-deletes a lead the same way an organization is removed.
func (t *Tracker) DeleteLead(ctx context.Context, partnerID int64) error {
	return t.softDelete(ctx, partnerID, reasonLeadDeleted, nil, msgPartnerNotFound)
}

func (t *Tracker) softDelete(ctx context.Context, partnerID int64, reason string, remarks *string, missing string) error {
	err := t.inPartnerTx(ctx, partnerID, func(tx Tx, appended *[]string) error {
		if _, err := getPartner(ctx, tx, partnerID, missing); err != nil {
			return err
		}
		if err := tx.SoftDeletePartner(ctx, partnerID); err != nil {
			return err
		}
		status := statusDropped
		dropDate := t.now()
		if _, err := tx.AppendAgreement(ctx, store.PartnerAgreement{
			PartnerID:           partnerID,
			ConversionStage:     store.StageDropped,
			NonConversionReason: &reason,
			IfAnyOtherReason:    remarks,
			CurrentStatus:       &status,
			AgreementDropDate:   &dropDate,
		}); err != nil {
			return err
		}
		*appended = append(*appended, store.StageDropped)
		_, err := tx.DeactivateMous(ctx, partnerID)
		return err
	})
	if err != nil {
		return err
	}
	t.log.Info("partner removed", zap.Int64("partner_id", partnerID), zap.String("reason", reason))
	return nil
}

// UpdateOrganization edits a converted partner and its POC. A signed
// document replaces the MOU named by LatestMouID with a new active one.
func (t *Tracker) UpdateOrganization(ctx context.Context, partnerID int64, req OrganizationUpdate) error {
	return t.inPartnerTx(ctx, partnerID, func(tx Tx, _ *[]string) error {
		partner, err := getLivePartner(ctx, tx, partnerID)
		if err != nil {
			return err
		}
		req.Partner.apply(&partner)
		if err := tx.UpdatePartner(ctx, partner); err != nil {
			return err
		}

		if err := t.updatePoc(ctx, tx, req.PocID, partnerID, req.Poc); err != nil {
			return err
		}

		if !req.Mou.Sign || req.Document == nil {
			return nil
		}
		mou, err := tx.GetMou(ctx, req.LatestMouID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && mou.PartnerID != partnerID) {
			return notFound(msgMouNotFound)
		}
		if err != nil {
			return fmt.Errorf("load mou: %w", err)
		}
		url, err := t.upload(ctx, req.Document)
		if err != nil {
			return err
		}
		if _, err := tx.DeactivateMous(ctx, partnerID); err != nil {
			return err
		}
		_, err = tx.InsertMou(ctx, store.Mou{
			PartnerID:           partnerID,
			MouSign:             true,
			MouSignDate:         req.Mou.SignDate,
			MouStartDate:        req.Mou.StartDate,
			MouEndDate:          req.Mou.EndDate,
			MouURL:              &url,
			MouStatus:           store.MouActive,
			ConfirmedChildCount: req.Mou.ConfirmedChildCount,
		})
		return err
	})
}

// UpdatePoc overwrites the contact details of a POC owned by
// req.PartnerID. The POC keeps its partner.
func (t *Tracker) UpdatePoc(ctx context.Context, pocID int64, req PocUpdate) error {
	return t.inPartnerTx(ctx, req.PartnerID, func(tx Tx, _ *[]string) error {
		return t.updatePoc(ctx, tx, pocID, req.PartnerID, req.Poc)
	})
}

func (t *Tracker) updatePoc(ctx context.Context, tx Tx, pocID, partnerID int64, fields PocFields) error {
	poc, err := tx.GetPoc(ctx, pocID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(msgPocNotFound)
	}
	if err != nil {
		return fmt.Errorf("load poc: %w", err)
	}
	if poc.PartnerID == nil || *poc.PartnerID != partnerID {
		return notFound(msgPocNotFound)
	}
	if fields.Name != nil {
		poc.PocName = fields.Name
	}
	if fields.Designation != nil {
		poc.PocDesignation = fields.Designation
	}
	if fields.Contact != nil {
		poc.PocContact = fields.Contact
	}
	if fields.Email != nil {
		poc.PocEmail = fields.Email
	}
	if fields.DateOfFirstContact != nil {
		poc.DateOfFirstContact = fields.DateOfFirstContact
	}
	return tx.UpdatePoc(ctx, poc)
}

// DeletePoc soft-deletes a POC.
func (t *Tracker) DeletePoc(ctx context.Context, pocID int64) error {
	return t.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.GetPoc(ctx, pocID); errors.Is(err, sql.ErrNoRows) {
			return notFound(msgPocNotFound)
		} else if err != nil {
			return fmt.Errorf("load poc: %w", err)
		}
		return tx.SoftDeletePoc(ctx, pocID)
	})
}
