package protocol

import (
	"encoding/json"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/simbridge/internal/body"
	"github.com/san-kum/simbridge/internal/layout"
)

// Message is a consumer→simulation message. The set is closed: only the types
// in this file implement it.
type Message interface {
	Tag() string
	isMessage()
}

const (
	TagInit      = "init"
	TagStart     = "start"
	TagStep      = "step"
	TagSetOption = "set"
	TagReset     = "reset"
	TagCommand   = "command"
	TagAdd       = "add"
	TagRemove    = "remove"
	TagRayCast   = "rayCast"
	TagProbe     = "probe"
)

// InputSize is the length of the per-step input/key vector.
const InputSize = 8

// Init is the one-time setup message.
type Init struct {
	Layout   layout.Layout `json:"layout"`
	Runtime  []byte        `json:"runtime,omitempty"`
	Transfer bool          `json:"transfer"`
	Options  Options       `json:"options"`
}

type Start struct{}

// Step advances the simulation by one tick. Buffer is set only in zero-copy
// mode, where it carries ownership of the shared buffer.
type Step struct {
	Delta  float64        `json:"delta"`
	Input  []float64      `json:"key"`
	Buffer *layout.Buffer `json:"-"`
}

type SetOption struct {
	Patch OptionPatch `json:"options"`
}

type Reset struct {
	Full bool `json:"full"`
}

// CommandKind names a fire-and-forget passthrough command.
type CommandKind string

const (
	CmdForces    CommandKind = "setForces"
	CmdOption    CommandKind = "setOption"
	CmdRemove    CommandKind = "setRemove"
	CmdMatrix    CommandKind = "setMatrix"
	CmdAnchor    CommandKind = "addAnchor"
	CmdBreakable CommandKind = "addBreakable"
	CmdDrive     CommandKind = "setDrive"
	CmdMove      CommandKind = "setMove"
)

type Command struct {
	Kind    CommandKind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewCommand encodes v as the command payload.
func NewCommand(kind CommandKind, v any) (Command, error) {
	if v == nil {
		return Command{Kind: kind}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, Payload: data}, nil
}

type AddObject struct {
	Descriptor body.Descriptor `json:"o"`
}

type RemoveObject struct {
	Name string `json:"name"`
}

type RayCast struct {
	ID        int        `json:"id"`
	Origin    mgl64.Vec3 `json:"origin"`
	Direction mgl64.Vec3 `json:"direction"`
	Filters   []string   `json:"filters,omitempty"`
}

// Probe carries a one-scalar buffer used to detect transfer support.
type Probe struct {
	Buffer *layout.Buffer `json:"-"`
}

func (Init) Tag() string         { return TagInit }
func (Start) Tag() string        { return TagStart }
func (Step) Tag() string         { return TagStep }
func (SetOption) Tag() string    { return TagSetOption }
func (Reset) Tag() string        { return TagReset }
func (Command) Tag() string      { return TagCommand }
func (AddObject) Tag() string    { return TagAdd }
func (RemoveObject) Tag() string { return TagRemove }
func (RayCast) Tag() string      { return TagRayCast }
func (Probe) Tag() string        { return TagProbe }

func (Init) isMessage()         {}
func (Start) isMessage()        {}
func (Step) isMessage()         {}
func (SetOption) isMessage()    {}
func (Reset) isMessage()        {}
func (Command) isMessage()      {}
func (AddObject) isMessage()    {}
func (RemoveObject) isMessage() {}
func (RayCast) isMessage()      {}
func (Probe) isMessage()        {}
