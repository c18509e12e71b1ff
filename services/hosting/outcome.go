package hosting

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Op identifies the operation an Outcome belongs to.
type Op string

const (
	OpUpload  Op = "upload"
	OpAdd     Op = "add"
	OpDisable Op = "disable"
	OpRemove  Op = "remove"
)

// Check names one independent validation step.
type Check string

const (
	CheckAuthKey  Check = "authkey"
	CheckSize     Check = "sizecheck"
	CheckFileType Check = "filetype"
	CheckMetadata Check = "metadata"
	CheckExists   Check = "exists"
)

// FailureMarker is the query value that marks a check as failed.
const FailureMarker = "false"

var (
	uploadChecks = []Check{CheckAuthKey, CheckSize, CheckFileType, CheckMetadata, CheckExists}
	adminChecks  = []Check{CheckAuthKey, CheckExists}
)

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	switch o {
	case OpUpload, OpAdd, OpDisable, OpRemove:
		return true
	}
	return false
}

// Checks lists, in display order, the checks reported for the operation.
func (o Op) Checks() []Check {
	if o == OpUpload {
		return uploadChecks
	}
	return adminChecks
}

// CheckResult is one line of the result checklist.
type CheckResult struct {
	Check  Check
	Passed bool
}

// Outcome accumulates independent check failures for one operation.
type Outcome struct {
	Op     Op
	failed map[Check]bool

	// Token is set when an add generated the vendor token.
	Token string
}

// NewOutcome returns an Outcome with every check passing.
func NewOutcome(op Op) *Outcome {
	return &Outcome{Op: op, failed: map[Check]bool{}}
}

// Fail marks c as failed.
func (o *Outcome) Fail(c Check) {
	o.failed[c] = true
}

// Failed reports whether c failed.
func (o *Outcome) Failed(c Check) bool {
	return o.failed[c]
}

// OK reports whether every check passed.
func (o *Outcome) OK() bool {
	return len(o.failed) == 0
}

// Results returns the checklist in display order.
func (o *Outcome) Results() []CheckResult {
	checks := o.Op.Checks()
	out := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		out = append(out, CheckResult{Check: c, Passed: !o.failed[c]})
	}
	return out
}

// Values encodes the outcome as query parameters: the op, one entry per
// failed check set to FailureMarker, the overall result and an optional token.
func (o *Outcome) Values() url.Values {
	v := url.Values{}
	v.Set("op", string(o.Op))
	for _, c := range o.Op.Checks() {
		if o.failed[c] {
			v.Set(string(c), FailureMarker)
		}
	}
	v.Set("result", strconv.FormatBool(o.OK()))
	if o.Token != "" {
		v.Set("token", o.Token)
	}
	return v
}

// ParseOutcome decodes Values. A check is failed only when present and equal
// to FailureMarker; anything else counts as passed.
func ParseOutcome(v url.Values) (*Outcome, error) {
	op := Op(v.Get("op"))
	if op == "" {
		op = OpUpload
	}
	if !op.Valid() {
		return nil, fmt.Errorf("unknown op %q", op)
	}
	o := NewOutcome(op)
	for _, c := range op.Checks() {
		if v.Get(string(c)) == FailureMarker {
			o.Fail(c)
		}
	}
	o.Token = v.Get("token")
	return o, nil
}

// MarshalJSON renders the outcome for JSON clients.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	checks := make(map[Check]bool, len(o.Op.Checks()))
	for _, r := range o.Results() {
		checks[r.Check] = r.Passed
	}
	return json.Marshal(struct {
		Op     Op             `json:"op"`
		Result bool           `json:"result"`
		Checks map[Check]bool `json:"checks"`
		Token  string         `json:"token,omitempty"`
	}{
		Op:     o.Op,
		Result: o.OK(),
		Checks: checks,
		Token:  o.Token,
	})
}
