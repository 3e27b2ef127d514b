package store

import (
	"context"
	"fmt"
)

func (q *Queries) InsertMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO meetings (user_id, poc_id, partner_id, meeting_date, follow_up_meeting_scheduled, follow_up_meeting_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, m.UserID, m.PocID, m.PartnerID, m.MeetingDate, m.FollowUpMeetingScheduled, m.FollowUpMeetingDate).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Meeting{}, fmt.Errorf("insert meeting: %w", mapPgError(err))
	}
	return m, nil
}

func (q *Queries) MeetingsForPartners(ctx context.Context, partnerIDs []int64) ([]Meeting, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, user_id, poc_id, partner_id, meeting_date, follow_up_meeting_scheduled, follow_up_meeting_date, created_at
		FROM meetings
		WHERE partner_id = ANY($1)
		ORDER BY partner_id, created_at ASC, id ASC
	`, nonNilIDs(partnerIDs))
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var items []Meeting
	for rows.Next() {
		var m Meeting
		if err := rows.Scan(&m.ID, &m.UserID, &m.PocID, &m.PartnerID, &m.MeetingDate, &m.FollowUpMeetingScheduled, &m.FollowUpMeetingDate, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
