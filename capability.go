package mellow

import (
	"fmt"
	"strings"
	"time"
)

// Capability names a permission a program can request: a Kind plus
// an optional Param, grounded on original_source/src/security/mod.rs's
// Capability enum, whose variants each carry an Option<T> payload
// (e.g. Network(Option<String>), FileRead(Option<PathBuf>)) and whose
// Display impl renders them as "kind:param" or bare "kind" when the
// payload is absent. Mellow names capabilities directly from source
// (`must have network { ... }`, `must have "network:example.com" {
// ... }`) rather than through a fixed Rust enum, so ParseCapability
// recovers Kind/Param by splitting on ':' instead of matching enum
// variants.
type Capability struct {
	Kind     string
	Param    string
	HasParam bool
}

// fileKinds lists the capability kinds whose own name contains a
// colon (original_source renders them as "file:read"/"file:write"),
// so ParseCapability must not mistake the kind's internal colon for
// the kind/param separator.
var fileKinds = []string{"file:read", "file:write"}

// ParseCapability splits a capability name from source into its
// Kind and optional Param, e.g. "network" -> {Kind: "network"},
// "network:example.com" -> {Kind: "network", Param: "example.com"}.
func ParseCapability(name string) Capability {
	for _, kind := range fileKinds {
		if name == kind {
			return Capability{Kind: kind}
		}
		if prefix := kind + ":"; strings.HasPrefix(name, prefix) {
			return Capability{Kind: kind, Param: name[len(prefix):], HasParam: true}
		}
	}
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return Capability{Kind: name[:i], Param: name[i+1:], HasParam: true}
	}
	return Capability{Kind: name}
}

func (c Capability) String() string {
	if c.HasParam {
		return c.Kind + ":" + c.Param
	}
	return c.Kind
}

// capabilityMatches implements spec's wildcard rule: a grant with no
// param matches any request of the same kind; otherwise kind and
// param must match exactly. Mirrors original_source's
// capability_matches, generalized from its five hardcoded enum arms
// to any Kind, since Mellow capabilities aren't a closed set.
func capabilityMatches(granted, requested Capability) bool {
	if granted.Kind != requested.Kind {
		return false
	}
	if !granted.HasParam {
		return true
	}
	return requested.HasParam && granted.Param == requested.Param
}

// GrantedCapability records one grant with its provenance and optional
// expiry, mirroring original_source's GrantedCapability struct.
type GrantedCapability struct {
	Capability Capability
	GrantedAt  time.Time
	ExpiresAt  *time.Time
	GrantedBy  string
	Revoked    bool
}

func (g *GrantedCapability) isValid(now time.Time) bool {
	if g.Revoked {
		return false
	}
	if g.ExpiresAt != nil && now.After(*g.ExpiresAt) {
		return false
	}
	return true
}

// AuditAction tags one entry in a Registry's audit log.
type AuditAction int

const (
	AuditRequested AuditAction = iota
	AuditGranted
	AuditDenied
	AuditUsed
	AuditRevoked
)

func (a AuditAction) String() string {
	switch a {
	case AuditRequested:
		return "requested"
	case AuditGranted:
		return "granted"
	case AuditDenied:
		return "denied"
	case AuditUsed:
		return "used"
	case AuditRevoked:
		return "revoked"
	}
	return "unknown"
}

// AuditEntry is one append-only audit log record.
type AuditEntry struct {
	Timestamp  time.Time
	Capability Capability
	Action     AuditAction
	Scope      string
	Success    bool
}

// Registry is Mellow's capability registry: a scope-to-grants map plus
// an append-only audit log, grounded on original_source's
// CapabilityRegistry. Scope is usually a function or worker name;
// the wildcard scope "*" grants globally, matching the original's
// `capabilities.get("*")` fallback.
type Registry struct {
	grants      map[string][]*GrantedCapability
	auditLog    []AuditEntry
	interactive bool
	defaultOK   bool
	consent     *ConsentStore
	now         func() time.Time
}

// NewRegistry builds a registry in the given Config's interactive /
// default-consent mode (spec §9 open question (b): non-interactive
// default is deny, matching original_source's `default_consent: false`
// in `CapabilityRegistry::new`).
func NewRegistry(cfg *Config, consent *ConsentStore) *Registry {
	return &Registry{
		grants:      make(map[string][]*GrantedCapability),
		interactive: cfg.Interactive,
		defaultOK:   cfg.DefaultConsent,
		consent:     consent,
		now:         time.Now,
	}
}

// Permissive builds a registry that auto-grants every request, for
// test harnesses (mirrors original_source's `CapabilityRegistry::permissive`).
func Permissive() *Registry {
	return &Registry{
		grants:    make(map[string][]*GrantedCapability),
		defaultOK: true,
		now:       time.Now,
	}
}

func (r *Registry) Grant(scope string, cap Capability, grantedBy string) {
	entry := &GrantedCapability{Capability: cap, GrantedAt: r.now(), GrantedBy: grantedBy}
	r.grants[scope] = append(r.grants[scope], entry)
	r.audit(cap, AuditGranted, scope, true)
}

func (r *Registry) GrantTemporary(scope string, cap Capability, d time.Duration, grantedBy string) {
	expires := r.now().Add(d)
	entry := &GrantedCapability{Capability: cap, GrantedAt: r.now(), ExpiresAt: &expires, GrantedBy: grantedBy}
	r.grants[scope] = append(r.grants[scope], entry)
	r.audit(cap, AuditGranted, scope, true)
}

func (r *Registry) Revoke(scope string, cap Capability) {
	for _, g := range r.grants[scope] {
		if g.Capability == cap {
			g.Revoked = true
		}
	}
	r.audit(cap, AuditRevoked, scope, true)
}

// HasCapability reports whether scope (or the wildcard scope "*") has
// a currently-valid grant matching cap, honoring the Kind wildcard
// rule (a grant with no Param authorizes any Param of the same Kind).
func (r *Registry) HasCapability(scope string, cap Capability) bool {
	now := r.now()
	for _, g := range r.grants[scope] {
		if capabilityMatches(g.Capability, cap) && g.isValid(now) {
			return true
		}
	}
	for _, g := range r.grants["*"] {
		if capabilityMatches(g.Capability, cap) && g.isValid(now) {
			return true
		}
	}
	return false
}

// Request is the entry point a `must have CAPABILITY { ... }` block
// calls before running its body: if the capability is already
// granted, it succeeds silently; otherwise it consults the consent
// store, falling back to interactive prompting or the configured
// default per spec §9 open question (b).
func (r *Registry) Request(scope string, cap Capability) error {
	if r.HasCapability(scope, cap) {
		r.audit(cap, AuditUsed, scope, true)
		return nil
	}
	r.audit(cap, AuditRequested, scope, true)

	if r.consent != nil {
		if decision, ok := r.consent.Check(scope, cap.String()); ok {
			if decision {
				r.Grant(scope, cap, "consent-store")
				return nil
			}
			r.audit(cap, AuditDenied, scope, false)
			return NewRuntimeError(ErrConsentDenied, fmt.Sprintf("capability %q denied for %q", cap, scope))
		}
	}

	if !r.interactive {
		if r.defaultOK {
			r.Grant(scope, cap, "auto")
			return nil
		}
		r.audit(cap, AuditDenied, scope, false)
		return NewRuntimeError(ErrConsentDenied, fmt.Sprintf("capability %q not granted for %q", cap, scope))
	}

	granted := promptForConsent(scope, cap)
	if granted {
		r.Grant(scope, cap, "user")
		return nil
	}
	r.audit(cap, AuditDenied, scope, false)
	return NewRuntimeError(ErrConsentDenied, fmt.Sprintf("capability %q denied for %q", cap, scope))
}

func (r *Registry) audit(cap Capability, action AuditAction, scope string, success bool) {
	r.auditLog = append(r.auditLog, AuditEntry{
		Timestamp:  r.now(),
		Capability: cap,
		Action:     action,
		Scope:      scope,
		Success:    success,
	})
}

// AuditLog returns the full append-only history of capability events.
func (r *Registry) AuditLog() []AuditEntry { return r.auditLog }
