package core

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// HoneypotFieldPool is the rotating pool of decoy field names injected into
// forms. The names look like plausible inputs so automated fillers complete
// them; humans never see them (the client hides them off-screen, removes them
// from tab order and marks them aria-hidden).
var HoneypotFieldPool = []string{
	"email_address",
	"website_url",
	"company_name",
	"phone_number",
	"full_name",
}

// RandomHoneypotField picks one decoy name from the pool.
func RandomHoneypotField() string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(HoneypotFieldPool))))
	if err != nil {
		return HoneypotFieldPool[0]
	}
	return HoneypotFieldPool[n.Int64()]
}

// GenerateHoneypotFields returns a fresh set of decoy fields (empty values)
// for one form instance. Two decoys are drawn; duplicates collapse, which is
// acceptable since the pool rotates per instance.
func GenerateHoneypotFields() map[string]string {
	honeypots := make(map[string]string)
	for i := 0; i < 2; i++ {
		honeypots[RandomHoneypotField()] = ""
	}
	return honeypots
}

// DetectHoneypot reports whether the decoy field injected for this form
// instance carries a value. Any non-empty string in the decoy is conclusive
// evidence of an automated filler. Detection is name-agnostic: the caller
// supplies the one field name that was actually injected.
func DetectHoneypot(fields map[string]any, honeypotField string) bool {
	if honeypotField == "" {
		return false
	}
	value, ok := fields[honeypotField]
	if !ok {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) != ""
}
