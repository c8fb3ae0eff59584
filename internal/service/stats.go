package service

import (
	"context"

	"github.com/m3rciful/cargobot/internal/shipment"
)

// Stats summarizes the store for the admin panel.
type Stats struct {
	Total    int                     `json:"total"`
	ByStatus map[shipment.Status]int `json:"by_status"`
	Users    int                     `json:"users"`
}

// Stats counts shipments per status and users.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	by, err := s.store.StatusCounts(ctx)
	if err != nil {
		return Stats{}, persistence(err)
	}
	users, err := s.store.CountUsers(ctx)
	if err != nil {
		return Stats{}, persistence(err)
	}
	st := Stats{ByStatus: by, Users: users}
	for _, n := range by {
		st.Total += n
	}
	return st, nil
}
