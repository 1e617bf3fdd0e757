package protocol

// Options is the live-tunable world configuration sent with Init and patched
// by SetOption.
type Options struct {
	FPS        int        `yaml:"fps" json:"fps"`
	WorldScale float64    `yaml:"worldscale" json:"worldscale"`
	Gravity    [3]float64 `yaml:"gravity" json:"gravity"`
	Substep    int        `yaml:"substep" json:"substep"`
	Broadphase int        `yaml:"broadphase" json:"broadphase"`
	Soft       bool       `yaml:"soft" json:"soft"`
	Fixed      bool       `yaml:"fixed" json:"fixed"`
}

const (
	DefaultFPS        = 60
	DefaultWorldScale = 1.0
	DefaultSubstep    = 2
	DefaultBroadphase = 2
)

var DefaultGravity = [3]float64{0, -10, 0}

func DefaultOptions() Options {
	return Options{
		FPS:        DefaultFPS,
		WorldScale: DefaultWorldScale,
		Gravity:    DefaultGravity,
		Substep:    DefaultSubstep,
		Broadphase: DefaultBroadphase,
		Soft:       true,
	}
}

// WithDefaults fills zero numeric fields with their defaults. Booleans are
// taken as given.
func (o Options) WithDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = DefaultFPS
	}
	if o.WorldScale == 0 {
		o.WorldScale = DefaultWorldScale
	}
	if o.Gravity == [3]float64{} {
		o.Gravity = DefaultGravity
	}
	if o.Substep <= 0 {
		o.Substep = DefaultSubstep
	}
	if o.Broadphase <= 0 {
		o.Broadphase = DefaultBroadphase
	}
	return o
}

// OptionPatch is a partial Options update; nil fields are left unchanged.
type OptionPatch struct {
	FPS        *int        `json:"fps,omitempty"`
	WorldScale *float64    `json:"worldscale,omitempty"`
	Gravity    *[3]float64 `json:"gravity,omitempty"`
	Substep    *int        `json:"substep,omitempty"`
	Broadphase *int        `json:"broadphase,omitempty"`
	Soft       *bool       `json:"soft,omitempty"`
	Fixed      *bool       `json:"fixed,omitempty"`
}

// Apply returns o with the patch applied.
func (o Options) Apply(p OptionPatch) Options {
	if p.FPS != nil && *p.FPS > 0 {
		o.FPS = *p.FPS
	}
	if p.WorldScale != nil {
		o.WorldScale = *p.WorldScale
	}
	if p.Gravity != nil {
		o.Gravity = *p.Gravity
	}
	if p.Substep != nil {
		o.Substep = *p.Substep
	}
	if p.Broadphase != nil {
		o.Broadphase = *p.Broadphase
	}
	if p.Soft != nil {
		o.Soft = *p.Soft
	}
	if p.Fixed != nil {
		o.Fixed = *p.Fixed
	}
	return o
}
