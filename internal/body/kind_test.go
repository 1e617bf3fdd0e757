package body

import (
	"errors"
	"testing"

	"github.com/san-kum/simbridge/internal/bridge"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		typ      string
		expected Kind
	}{
		{"", KindRigid},
		{"box", KindRigid},
		{"convex", KindRigid},
		{"softCloth", KindSoft},
		{"softRope", KindSoft},
		{"softEllipsoid", KindSoft},
		{"jointHinge", KindJoint},
		{"joint_p2p", KindJoint},
		{"terrain", KindTerrain},
		{"character", KindCharacter},
		{"collision", KindCollision},
		{"car", KindVehicle},
		{"ray", KindRay},
	}

	for _, tt := range tests {
		k, err := ParseKind(tt.typ)
		if err != nil {
			t.Errorf("type %q: unexpected error %v", tt.typ, err)
			continue
		}
		if k != tt.expected {
			t.Errorf("type %q: expected %s, got %s", tt.typ, tt.expected, k)
		}
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	for _, typ := range []string{"spaceship", "terrainX", "cars", "so"} {
		_, err := ParseKind(typ)
		if !errors.Is(err, bridge.ErrUnknownKind) {
			t.Errorf("type %q: expected ErrUnknownKind, got %v", typ, err)
		}
	}
}
