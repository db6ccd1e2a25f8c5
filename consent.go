package mellow

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ConsentDuration is how long a stored consent decision remains valid,
// grounded on original_source/src/security/consent.rs's ConsentDuration.
type ConsentDuration int

const (
	DurationSession ConsentDuration = iota
	DurationDay
	DurationWeek
	DurationForever
	DurationOnce
)

func (d ConsentDuration) tag() string {
	switch d {
	case DurationSession:
		return "session"
	case DurationDay:
		return "day"
	case DurationWeek:
		return "week"
	case DurationForever:
		return "forever"
	case DurationOnce:
		return "once"
	}
	return "session"
}

func parseDurationTag(s string) (ConsentDuration, bool) {
	switch s {
	case "session":
		return DurationSession, true
	case "day":
		return DurationDay, true
	case "week":
		return DurationWeek, true
	case "forever":
		return DurationForever, true
	case "once":
		return DurationOnce, true
	}
	return DurationSession, false
}

// seconds reports the validity window in seconds. Forever reports a
// window too large to elapse and Once reports 0; only Session reports
// false (valid for the process lifetime, so callers never see it go
// stale via this check).
func (d ConsentDuration) seconds() (int64, bool) {
	switch d {
	case DurationDay:
		return 86400, true
	case DurationWeek:
		return 604800, true
	case DurationForever:
		return 1<<62 - 1, true
	case DurationOnce:
		return 0, true
	}
	return 0, false
}

// storedConsent is one line of the consent file.
type storedConsent struct {
	scope      string
	capability string
	granted    bool
	timestamp  int64
	remember   ConsentDuration
}

// ConsentStore is Mellow's persistent record of prior consent
// decisions, grounded on original_source/src/security/consent.rs. The
// file format (`scope|capability|yes|no|unix-seconds|duration-tag`)
// is spec §6's format exactly. File I/O here uses the standard
// library rather than a third-party store: the corpus carries no
// key-value or embedded-db dependency for this, and the format is a
// handful of pipe-delimited lines, not a case a database library
// would meaningfully simplify.
type ConsentStore struct {
	path     string
	consents map[string]storedConsent
	autoSave bool
}

func NewConsentStore(path string) *ConsentStore {
	return &ConsentStore{path: path, consents: make(map[string]storedConsent), autoSave: true}
}

// DefaultConsentPath mirrors original_source's default_path: prefer
// XDG_CONFIG_HOME, fall back to $HOME/.config, then a dotfile in the
// working directory.
func DefaultConsentPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mellow", "consent.db")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "mellow", "consent.db")
	}
	return ".mellow-consent.db"
}

func consentKey(scope, capability string) string { return scope + ":" + capability }

// Load reads the consent file if present; a missing file is not an
// error (spec §6: first run has no prior decisions).
func (s *ConsentStore) Load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if c, ok := parseConsentLine(line); ok {
			s.consents[consentKey(c.scope, c.capability)] = c
		}
	}
	return scanner.Err()
}

func parseConsentLine(line string) (storedConsent, bool) {
	parts := strings.Split(line, "|")
	if len(parts) != 5 {
		return storedConsent{}, false
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return storedConsent{}, false
	}
	dur, ok := parseDurationTag(parts[4])
	if !ok {
		return storedConsent{}, false
	}
	return storedConsent{
		scope:      parts[0],
		capability: parts[1],
		granted:    parts[2] == "yes",
		timestamp:  ts,
		remember:   dur,
	}, true
}

// Save writes every stored consent to the file, creating its parent
// directory if needed.
func (s *ConsentStore) Save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	var sb strings.Builder
	sb.WriteString("# Mellow Consent Storage\n")
	sb.WriteString("# Format: scope|capability|granted|timestamp|duration\n\n")
	for _, c := range s.consents {
		granted := "no"
		if c.granted {
			granted = "yes"
		}
		fmt.Fprintf(&sb, "%s|%s|%s|%d|%s\n", c.scope, c.capability, granted, c.timestamp, c.remember.tag())
	}
	return os.WriteFile(s.path, []byte(sb.String()), 0o644)
}

// Store records a consent decision, persisting immediately unless
// auto-save is disabled.
func (s *ConsentStore) Store(scope, capability string, granted bool, duration ConsentDuration) error {
	s.consents[consentKey(scope, capability)] = storedConsent{
		scope:      scope,
		capability: capability,
		granted:    granted,
		timestamp:  time.Now().Unix(),
		remember:   duration,
	}
	if s.autoSave {
		return s.Save()
	}
	return nil
}

// Check reports a prior decision and whether one applies; the second
// return is false if no decision was stored, it expired, or it was
// recorded as Once (ask-every-time, per spec §6).
func (s *ConsentStore) Check(scope, capability string) (granted bool, ok bool) {
	c, found := s.consents[consentKey(scope, capability)]
	if !found {
		return false, false
	}
	if c.remember == DurationOnce {
		return false, false
	}
	if secs, expires := c.remember.seconds(); expires {
		if time.Now().Unix()-c.timestamp > secs {
			return false, false
		}
	}
	return c.granted, true
}

func (s *ConsentStore) Revoke(scope, capability string) error {
	delete(s.consents, consentKey(scope, capability))
	if s.autoSave {
		return s.Save()
	}
	return nil
}

func (s *ConsentStore) RevokeAll(scope string) error {
	prefix := scope + ":"
	for k := range s.consents {
		if strings.HasPrefix(k, prefix) {
			delete(s.consents, k)
		}
	}
	if s.autoSave {
		return s.Save()
	}
	return nil
}

func (s *ConsentStore) SetAutoSave(v bool) { s.autoSave = v }

// promptForConsent runs the interactive y/n prompt a `must have`
// block falls back to once neither the registry nor the consent store
// has an answer. Grounded on original_source's stdin prompt in
// CapabilityRegistry::request.
func promptForConsent(scope string, cap Capability) bool {
	fmt.Printf("Capability request: %s\n", cap)
	fmt.Printf("   Scope: %s\n", scope)
	fmt.Print("   Grant this capability? (y/n): ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
