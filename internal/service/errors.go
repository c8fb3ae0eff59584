package service

import (
	"errors"
	"fmt"

	"github.com/m3rciful/cargobot/internal/shipment"
)

// persistence tags store failures unless they already carry a domain sentinel.
func persistence(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		shipment.ErrNotFound,
		shipment.ErrPermission,
		shipment.ErrInvalidTransition,
		shipment.ErrValidation,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", shipment.ErrPersistence, err)
}

func denied(actor shipment.Actor, id string) error {
	return fmt.Errorf("%s on shipment %s: %w", actor.Label(), id, shipment.ErrPermission)
}
