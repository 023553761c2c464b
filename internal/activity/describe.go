package activity

import (
	"fmt"

	"github.com/iliyamo/parish-reservations/internal/model"
)

const entityReservation = "reservation"

// Requested describes a new reservation: one line for the requester and
// one for the administrators.
func Requested(res *model.Reservation, massTitle string) []model.ActivityRecord {
	kind := res.Pool.Label()
	return []model.ActivityRecord{
		{
			ActorID:     res.RequesterID,
			Audience:    model.AudienceSelf,
			Description: fmt.Sprintf("You requested a %s for %s.", kind, massTitle),
			EntityType:  entityReservation,
			EntityID:    res.ID,
		},
		{
			ActorID:     res.RequesterID,
			Audience:    model.AudienceAdmin,
			Description: fmt.Sprintf("User %d requested a %s for %s.", res.RequesterID, kind, massTitle),
			EntityType:  entityReservation,
			EntityID:    res.ID,
		},
	}
}

// StatusChanged describes an administrator's decision.  The requester's
// line is worded by the new status.
func StatusChanged(res *model.Reservation, admin model.Actor, massTitle string) []model.ActivityRecord {
	kind := res.Pool.Label()
	var self string
	switch res.Status {
	case model.StatusApproved:
		self = fmt.Sprintf("Your %s for %s was approved.", kind, massTitle)
	case model.StatusRejected:
		self = fmt.Sprintf("Your %s for %s was rejected.", kind, massTitle)
	default:
		self = fmt.Sprintf("Your %s for %s is now %s.", kind, massTitle, res.Status)
	}
	return []model.ActivityRecord{
		{
			ActorID:     res.RequesterID,
			Audience:    model.AudienceSelf,
			Description: self,
			EntityType:  entityReservation,
			EntityID:    res.ID,
		},
		{
			ActorID:     admin.ID,
			Audience:    model.AudienceAdmin,
			Description: fmt.Sprintf("Admin %d set %s #%d of user %d to %s.", admin.ID, kind, res.ID, res.RequesterID, res.Status),
			EntityType:  entityReservation,
			EntityID:    res.ID,
		},
	}
}

// Deleted describes an administrative delete.
func Deleted(res *model.Reservation, admin model.Actor) []model.ActivityRecord {
	return []model.ActivityRecord{{
		ActorID:     admin.ID,
		Audience:    model.AudienceAdmin,
		Description: fmt.Sprintf("Admin %d deleted %s #%d of user %d.", admin.ID, res.Pool.Label(), res.ID, res.RequesterID),
		EntityType:  entityReservation,
		EntityID:    res.ID,
	}}
}
