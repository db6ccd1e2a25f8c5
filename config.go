package mellow

// Config holds the small set of statically-known knobs the compiler
// and runtime consult. Unlike a grammar toolkit with open-ended
// loader configuration, Mellow has a fixed, small knob set, so a
// plain struct replaces the teacher's dynamic string-keyed map; the
// explicit setter-per-knob idiom survives for the knobs where a
// default matters.
type Config struct {
	// OptimizeLevel controls how many optimizer passes the compiler
	// runs: 0 disables the optimizer entirely, 1 runs fold+peephole+DCE once.
	OptimizeLevel int

	// Interactive, when true, lets the capability registry prompt on
	// stdin for consent decisions it cannot resolve from the consent
	// store. Defaults to false (a library embedding Mellow is rarely
	// attached to a terminal).
	Interactive bool

	// DefaultConsent is the decision used when Interactive is false
	// and no stored consent record exists. See DESIGN.md's "Open
	// Question decisions": defaults to deny.
	DefaultConsent bool

	// MaxStackSize and MaxCallDepth bound the VM's operand stack and
	// call-frame stack respectively.
	MaxStackSize int
	MaxCallDepth int
}

func NewConfig() *Config {
	return &Config{
		OptimizeLevel:  1,
		Interactive:    false,
		DefaultConsent: false,
		MaxStackSize:   10000,
		MaxCallDepth:   1000,
	}
}
