package body

import (
	"fmt"
	"strings"

	"github.com/san-kum/simbridge/internal/bridge"
)

// Kind is the closed set of object categories a descriptor can be routed to.
type Kind int

const (
	KindRigid Kind = iota
	KindSoft
	KindTerrain
	KindCharacter
	KindCollision
	KindVehicle
	KindRay
	KindJoint
)

var kindNames = map[Kind]string{
	KindRigid:     "rigid",
	KindSoft:      "soft",
	KindTerrain:   "terrain",
	KindCharacter: "character",
	KindCollision: "collision",
	KindVehicle:   "vehicle",
	KindRay:       "ray",
	KindJoint:     "joint",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindRigid, KindSoft, KindTerrain, KindCharacter, KindCollision, KindVehicle, KindRay, KindJoint}
}

// family prefixes: every type starting with one of these belongs to the kind.
var families = []struct {
	prefix string
	kind   Kind
}{
	{"joint", KindJoint},
	{"soft", KindSoft},
}

var exact = map[string]Kind{
	"terrain":   KindTerrain,
	"character": KindCharacter,
	"collision": KindCollision,
	"car":       KindVehicle,
	"ray":       KindRay,

	"box":          KindRigid,
	"hardbox":      KindRigid,
	"sphere":       KindRigid,
	"highsphere":   KindRigid,
	"cylinder":     KindRigid,
	"hardcylinder": KindRigid,
	"cone":         KindRigid,
	"capsule":      KindRigid,
	"plane":        KindRigid,
	"convex":       KindRigid,
	"mesh":         KindRigid,
	"compound":     KindRigid,
}

// DefaultType is the type assumed for a descriptor that names none.
const DefaultType = "box"

// ParseKind resolves a descriptor type tag. Family prefixes (soft*, joint*) are
// matched first, then exact names; anything else is rejected.
func ParseKind(typ string) (Kind, error) {
	if typ == "" {
		typ = DefaultType
	}
	t := strings.ToLower(typ)
	for _, f := range families {
		if strings.HasPrefix(t, f.prefix) {
			return f.kind, nil
		}
	}
	if k, ok := exact[t]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", bridge.ErrUnknownKind, typ)
}
