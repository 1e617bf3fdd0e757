package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
)

// Matrix is the setMatrix payload: teleport an object. Nil fields are kept.
type Matrix struct {
	Name         string      `json:"name"`
	Position     *mgl64.Vec3 `json:"pos,omitempty"`
	Orientation  *mgl64.Quat `json:"quat,omitempty"`
	KeepVelocity bool        `json:"keepVelocity,omitempty"`
}

// Force is the setForces payload: an impulse applied at the next tick.
type Force struct {
	Name    string     `json:"name"`
	Impulse mgl64.Vec3 `json:"impulse"`
}

// Breakable is the addBreakable payload.
type Breakable struct {
	Name    string            `json:"name"`
	Options body.BreakOptions `json:"breakOption"`
}

// Removal is the setRemove payload: names removed in one command.
type Removal struct {
	Names []string `json:"names"`
}

// DecodePayload unmarshals a command payload into T.
func DecodePayload[T any](c Command) (T, error) {
	var v T
	if len(c.Payload) == 0 {
		return v, fmt.Errorf("%s: empty payload", c.Kind)
	}
	if err := json.Unmarshal(c.Payload, &v); err != nil {
		return v, fmt.Errorf("%s: %w", c.Kind, err)
	}
	return v, nil
}
