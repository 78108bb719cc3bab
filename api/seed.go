package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/directory"
	"github.com/warp/shift-engine/roster"
)

// Seed is the startup file named by SHIFT_ENGINE_SEED. It carries the data
// that has no owning service in this process: property locations and the
// travel table served by the built-in estimator.
//
//	{
//	  "properties": [{"id": "canal-loft", "postal_code": "75010"}],
//	  "estimates":  [{"postal_code": "75010",
//	                  "estimates": [{"worker_id": "bob", "travel_minutes": 12}]}]
//	}
type Seed struct {
	Properties []PropertyRequest  `json:"properties" validate:"dive"`
	Estimates  []EstimatesRequest `json:"estimates" validate:"dive"`
}

// LoadSeed validates the whole file before applying any of it.
func (h *Handler) LoadSeed(ctx context.Context, r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}
	if err := h.validate.Struct(seed); err != nil {
		return &roster.ValidationError{Field: "seed", Message: err.Error()}
	}

	for _, p := range seed.Properties {
		prop := directory.Property{ID: roster.PropertyID(p.ID), PostalCode: p.PostalCode, Address: p.Address}
		if err := h.Store.SaveProperty(ctx, prop); err != nil {
			return fmt.Errorf("failed to seed property %s: %w", p.ID, err)
		}
		h.Directory.Invalidate(prop.ID)
	}
	for _, e := range seed.Estimates {
		h.Estimator.Set(e.PostalCode, toEstimates(e.Estimates)...)
	}

	h.log.WithFields(logrus.Fields{
		"properties":   len(seed.Properties),
		"postal_codes": len(seed.Estimates),
	}).Info("seed loaded")
	return nil
}
