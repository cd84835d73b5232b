package sentinel

import (
	"fmt"
	"os"
	"regexp"
)

// Resolver holds the constants and the id→secret table imported from the
// registry's sibling source files, used to resolve bare-identifier fields.
type Resolver struct {
	consts  map[string]string
	secrets map[string]string
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		consts:  map[string]string{},
		secrets: map[string]string{},
	}
}

var constRe = regexp.MustCompile(`(?m)^\s*(?:export\s+)?const\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?::[^=\n]+)?=\s*["']([^"'\n]*)["']`)

var secretTableRe = regexp.MustCompile(`(?ms)(?:export\s+)?const\s+[A-Za-z_][A-Za-z0-9_]*\s*(?::[^=\n]+)?=\s*\{(.*?)\}`)

var secretEntryRe = regexp.MustCompile(`["']([^"'\n]+)["']\s*:\s*["']([^"'\n]*)["']`)

// AddConstantsSource parses `const NAME = "value"` declarations from one
// sibling source file's text.
func (r *Resolver) AddConstantsSource(src string) {
	for _, m := range constRe.FindAllStringSubmatch(src, -1) {
		r.consts[m[1]] = m[2]
	}
}

// AddSecretsSource parses the id→secret map literal from one source file's
// text. Every `"id": "secret"` pair inside a const object literal is taken.
func (r *Resolver) AddSecretsSource(src string) {
	for _, table := range secretTableRe.FindAllStringSubmatch(src, -1) {
		for _, m := range secretEntryRe.FindAllStringSubmatch(table[1], -1) {
			r.secrets[m[1]] = m[2]
		}
	}
}

// AddConstantsFile reads and parses a constants file.
func (r *Resolver) AddConstantsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading constants file: %w", err)
	}
	r.AddConstantsSource(string(data))
	return nil
}

// AddSecretsFile reads and parses a secret-table file.
func (r *Resolver) AddSecretsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading secrets file: %w", err)
	}
	r.AddSecretsSource(string(data))
	return nil
}

// Constant resolves a bare identifier to its constant value.
func (r *Resolver) Constant(ident string) (string, bool) {
	v, ok := r.consts[ident]
	return v, ok
}

// Password performs the two-step password resolution: the route's password
// field names an identifier, the identifier's constant value is a password id,
// and the password id indexes the secret table.
func (r *Resolver) Password(ident string) (string, bool) {
	passwordID, ok := r.consts[ident]
	if !ok {
		// A quoted password field skips the constant step and is already a
		// password id.
		passwordID = ident
	}
	secret, ok := r.secrets[passwordID]
	return secret, ok
}
