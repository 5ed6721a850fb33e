package core

// SubmissionContext bundles the facts about one inbound submission that the
// defense pipeline examines. It is built once when the request is parsed and
// treated as read-only by every stage.
type SubmissionContext struct {
	ProjectKey string
	Fields     map[string]any
	Honeypot   string
	Timestamp  int64 // client-declared, epoch milliseconds
	Signature  string

	UserAgent string
	Referer   string
	Origin    string

	// Identity is the salted one-way hash of the client network address.
	Identity string

	ProofOfWork *Solution

	// RecentFromIdentity is the number of accepted submissions from the same
	// identity to the same project within the trailing hour. It is looked up
	// before scoring runs so the high-frequency signal stays pure.
	RecentFromIdentity int64
}

// FieldCount returns the number of distinct submitted fields.
func (c *SubmissionContext) FieldCount() int {
	return len(c.Fields)
}
