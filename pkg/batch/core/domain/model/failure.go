package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
)

// FailureKind classifies a recorded failure.
type FailureKind = exception.Kind

// Failure describes one error recorded on an execution.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	// Causes lists the messages of the wrapped errors, outermost first.
	Causes []string `json:"causes,omitempty"`
	// Secondary marks failures that happened while cleaning up after the primary outcome,
	// such as a lock release error after a completed step.
	Secondary bool `json:"secondary,omitempty"`
}

// NewFailure builds a failure descriptor from an error.
func NewFailure(kind FailureKind, err error) Failure {
	f := Failure{Kind: kind, Message: exception.ExtractErrorMessage(err)}
	chain := exception.CauseChain(err)
	for _, c := range chain {
		if c != f.Message {
			f.Causes = append(f.Causes, c)
		}
	}
	return f
}

// String returns a compact representation, e.g. "READER: Planned!".
func (f Failure) String() string {
	if f.Secondary {
		return fmt.Sprintf("%s (secondary): %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// FailureList holds the failures recorded on an execution in the order they occurred.
type FailureList []Failure

// Primary returns the failures that are not secondary.
func (fl FailureList) Primary() FailureList {
	var out FailureList
	for _, f := range fl {
		if !f.Secondary {
			out = append(out, f)
		}
	}
	return out
}

// HasKind reports whether any failure of the given kind is present.
func (fl FailureList) HasKind(kind FailureKind) bool {
	for _, f := range fl {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Messages returns the failure messages in order.
func (fl FailureList) Messages() []string {
	out := make([]string, 0, len(fl))
	for _, f := range fl {
		out = append(out, f.Message)
	}
	return out
}

// String joins the failures for log output.
func (fl FailureList) String() string {
	parts := make([]string, 0, len(fl))
	for _, f := range fl {
		parts = append(parts, f.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Value implements the `driver.Valuer` interface, converting FailureList to a JSON string.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FailureList.
func (fl *FailureList) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*fl = FailureList{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = FailureList{}
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}
