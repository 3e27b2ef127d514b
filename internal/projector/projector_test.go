package projector

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"madcrm/api/internal/store"
)

type fakeBatch struct {
	agreements []store.PartnerAgreement
	links      []store.PocLink
	cos        []store.CoAssignment
	mous       []store.Mou
	meetings   []store.Meeting
	mouErr     error
	calls      int
}

func (f *fakeBatch) AgreementsForPartners(context.Context, []int64) ([]store.PartnerAgreement, error) {
	return f.agreements, nil
}

func (f *fakeBatch) PocLinksForPartners(context.Context, []int64) ([]store.PocLink, error) {
	return f.links, nil
}

func (f *fakeBatch) CoAssignmentsForPartners(context.Context, []int64) ([]store.CoAssignment, error) {
	return f.cos, nil
}

func (f *fakeBatch) MousForPartners(context.Context, []int64) ([]store.Mou, error) {
	f.calls++
	return f.mous, f.mouErr
}

func (f *fakeBatch) MeetingsForPartners(context.Context, []int64) ([]store.Meeting, error) {
	return f.meetings, nil
}

func at(day int) time.Time {
	return time.Date(2025, 1, day, 12, 0, 0, 0, time.UTC)
}

func str(s string) *string { return &s }

func TestPartnersLastRowWins(t *testing.T) {
	b := &fakeBatch{
		agreements: []store.PartnerAgreement{
			{PartnerID: 1, ConversionStage: store.StageNew, CreatedAt: at(1)},
			{PartnerID: 1, ConversionStage: store.StageFirstConversation, CreatedAt: at(2)},
			{PartnerID: 1, ConversionStage: store.StageConverted, CreatedAt: at(3), SpecificDocRequired: true},
			{PartnerID: 2, ConversionStage: store.StageNew, CreatedAt: at(1)},
		},
		cos: []store.CoAssignment{
			{PartnerID: 1, CoID: 10, CoName: str("Asha"), CreatedAt: at(1)},
			{PartnerID: 1, CoID: 11, CoName: str("Ravi"), CreatedAt: at(4)},
		},
		mous: []store.Mou{
			{ID: 5, PartnerID: 1, MouStatus: store.MouInactive, CreatedAt: at(2)},
			{ID: 6, PartnerID: 1, MouSign: true, MouStatus: store.MouActive, MouURL: str("https://docs/1.pdf"), CreatedAt: at(3)},
		},
		links: []store.PocLink{
			{PartnerID: 1, PocID: 7, Poc: store.Poc{ID: 7, PocName: str("Old")}, CreatedAt: at(1)},
			{PartnerID: 1, PocID: 8, Poc: store.Poc{ID: 8, PocName: str("Principal Rao")}, CreatedAt: at(2)},
		},
		meetings: []store.Meeting{
			{PartnerID: 1, FollowUpMeetingScheduled: true, CreatedAt: at(2)},
		},
	}
	partners := []store.Partner{
		{ID: 2, PartnerName: "Second"},
		{ID: 1, PartnerName: "First", CityName: str("Pune")},
	}

	views, err := New(b).Partners(context.Background(), partners)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if len(views) != 2 || views[0].ID != 2 || views[1].ID != 1 {
		t.Fatalf("page order not kept: %+v", views)
	}

	v := views[1]
	if *v.ConversionStage != store.StageConverted || !*v.SpecificDocRequired {
		t.Fatalf("latest agreement = %v", *v.ConversionStage)
	}
	if *v.CoID != 11 || *v.CoName != "Ravi" {
		t.Fatalf("co = %v %v", *v.CoID, *v.CoName)
	}
	if *v.MouID != 6 || *v.MouStatus != store.MouActive {
		t.Fatalf("mou = %v %v", *v.MouID, *v.MouStatus)
	}
	if *v.PocID != 8 || *v.PocName != "Principal Rao" {
		t.Fatalf("poc = %v", *v.PocID)
	}
	if v.FollowUpMeetingScheduled == nil || !*v.FollowUpMeetingScheduled {
		t.Fatalf("follow up meeting not projected")
	}
	want := []Stage{
		{Stage: store.StageNew, Timestamp: at(1)},
		{Stage: store.StageFirstConversation, Timestamp: at(2)},
		{Stage: store.StageConverted, Timestamp: at(3)},
	}
	if !reflect.DeepEqual(v.TrackingHistory, want) {
		t.Fatalf("history = %+v", v.TrackingHistory)
	}

	second := views[0]
	if second.MouID != nil || second.PocID != nil || second.CoID != nil {
		t.Fatalf("unexpected related rows on partner 2: %+v", second)
	}
	if len(second.TrackingHistory) != 1 {
		t.Fatalf("history = %+v", second.TrackingHistory)
	}
}

func TestPartnersEmptyPageSkipsQueries(t *testing.T) {
	b := &fakeBatch{}
	views, err := New(b).Partners(context.Background(), nil)
	if err != nil || len(views) != 0 {
		t.Fatalf("views=%v err=%v", views, err)
	}
	if b.calls != 0 {
		t.Fatalf("expected no batch queries, got %d", b.calls)
	}
}

func TestPartnersPropagatesBatchError(t *testing.T) {
	boom := errors.New("mous unavailable")
	b := &fakeBatch{mouErr: boom}
	_, err := New(b).Partners(context.Background(), []store.Partner{{ID: 1}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected batch error, got %v", err)
	}
}

func TestPartnersWithoutHistoryHasEmptyTracking(t *testing.T) {
	views, err := New(&fakeBatch{}).Partners(context.Background(), []store.Partner{{ID: 3}})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if views[0].TrackingHistory == nil || len(views[0].TrackingHistory) != 0 {
		t.Fatalf("tracking history should be an empty list")
	}
	if views[0].ConversionStage != nil {
		t.Fatalf("conversion stage should be null")
	}
}

func TestPocs(t *testing.T) {
	partnerID := int64(4)
	coID := int64(12)
	rows := []store.PocRow{{
		Poc:         store.Poc{ID: 9, PartnerID: &partnerID, PocName: str("Mrs Iyer")},
		PartnerName: str("Hill School"),
		CityName:    str("Nagpur"),
		CoID:        &coID,
		CoName:      str("Meera"),
	}}
	views := Pocs(rows)
	if len(views) != 1 {
		t.Fatalf("views = %d", len(views))
	}
	v := views[0]
	if v.ID != 9 || *v.PartnerID != 4 || *v.City != "Nagpur" || *v.CoID != 12 {
		t.Fatalf("view = %+v", v)
	}
}
