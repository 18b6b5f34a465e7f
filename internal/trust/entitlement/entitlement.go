// Package entitlement implements the read/write/schema enforcement
// layer described in §4.9: given an agent's registered scopes and
// validity window, it decides whether a table or column access is
// permitted before any row data is touched.
package entitlement

import (
	"fmt"
	"time"

	"github.com/sharc-db/sharc/internal/sharcerr"
	"github.com/sharc-db/sharc/internal/trust/scope"
)

// AgentInfo is the subset of a registered agent's identity the enforcer
// needs to decide an access. ValidityStart/ValidityEnd are unix seconds;
// 0 on either side means unrestricted, per §4.9.
type AgentInfo struct {
	AgentID       string
	ReadScope     string
	WriteScope    string
	ValidityStart int64
	ValidityEnd   int64
}

// TableColumns names one table and, optionally, the specific columns a
// query touches. A nil/empty Columns means a wildcard access (e.g.
// `SELECT *`), which §4.9 only grants to a scope with unrestricted
// column access.
type TableColumns struct {
	Table   string
	Columns []string
}

// Validator is a pluggable hook an Enforcer runs before every check,
// e.g. to consult an external revocation list. A nil Validator is
// skipped.
type Validator func(info AgentInfo, now time.Time) error

// Enforcer validates agent accesses against registered scopes.
type Enforcer struct {
	// Lookup resolves an agent id to its registered info; false means
	// the agent is unknown.
	Lookup func(agentID string) (AgentInfo, bool)
	// Validate is the optional identity_validator hook (§4.9).
	Validate Validator
	// Now defaults to time.Now when nil.
	Now func() time.Time
}

// New creates an Enforcer backed by lookup, with no identity validator.
func New(lookup func(agentID string) (AgentInfo, bool)) *Enforcer {
	return &Enforcer{Lookup: lookup}
}

func (e *Enforcer) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// resolve looks up agentID, checks its validity window, and runs the
// identity validator hook, in that order.
func (e *Enforcer) resolve(agentID string) (AgentInfo, error) {
	info, ok := e.Lookup(agentID)
	if !ok {
		return AgentInfo{}, &sharcerr.TrustError{Kind: sharcerr.KindUnknownAgent, Agent: agentID}
	}
	now := e.now()
	nowUnix := now.Unix()
	if info.ValidityStart != 0 && nowUnix < info.ValidityStart {
		return AgentInfo{}, &sharcerr.TrustError{Kind: sharcerr.KindAgentExpired, Agent: agentID, Err: fmt.Errorf("not yet active")}
	}
	if info.ValidityEnd != 0 && nowUnix > info.ValidityEnd {
		return AgentInfo{}, &sharcerr.TrustError{Kind: sharcerr.KindAgentExpired, Agent: agentID, Err: fmt.Errorf("validity window elapsed")}
	}
	if e.Validate != nil {
		if err := e.Validate(info, now); err != nil {
			return AgentInfo{}, err
		}
	}
	return info, nil
}

func checkScope(sc scope.Scope, table string, columns []string) (bool, string) {
	if len(columns) == 0 {
		return sc.CanReadAllColumns(table), ""
	}
	for _, col := range columns {
		if !sc.CanReadColumn(table, col) {
			return false, col
		}
	}
	return true, ""
}

// Enforce validates agentID's read scope covers table (and, if columns
// is non-empty, each named column). A nil/empty columns is a wildcard
// select, which §4.9 denies unless the scope grants unrestricted column
// access to table.
func (e *Enforcer) Enforce(agentID, table string, columns []string) error {
	info, err := e.resolve(agentID)
	if err != nil {
		return err
	}
	ok, col := checkScope(scope.Parse(info.ReadScope), table, columns)
	if !ok {
		return &sharcerr.TrustError{Kind: sharcerr.KindUnauthorizedRead, Agent: agentID, Err: unauthorizedErr(table, col)}
	}
	return nil
}

// EnforceWrite is Enforce's write-scope counterpart.
func (e *Enforcer) EnforceWrite(agentID, table string, columns []string) error {
	info, err := e.resolve(agentID)
	if err != nil {
		return err
	}
	ok, col := checkScope(scope.Parse(info.WriteScope), table, columns)
	if !ok {
		return &sharcerr.TrustError{Kind: sharcerr.KindUnauthorizedWrite, Agent: agentID, Err: unauthorizedErr(table, col)}
	}
	return nil
}

// EnforceSchemaAdmin validates agentID's read scope grants schema
// administration (DDL, catalog inspection).
func (e *Enforcer) EnforceSchemaAdmin(agentID string) error {
	info, err := e.resolve(agentID)
	if err != nil {
		return err
	}
	if !scope.Parse(info.ReadScope).IsSchemaAdmin() {
		return &sharcerr.TrustError{Kind: sharcerr.KindUnauthorizedSchema, Agent: agentID}
	}
	return nil
}

// EnforceAll validates a compound query atomically: every table/column
// pair in queries must pass before any of them is considered
// authorized, so a multi-table query either runs entirely or not at all.
func (e *Enforcer) EnforceAll(agentID string, queries []TableColumns) error {
	for _, q := range queries {
		if err := e.Enforce(agentID, q.Table, q.Columns); err != nil {
			return err
		}
	}
	return nil
}

func unauthorizedErr(table, column string) error {
	if column == "" {
		return fmt.Errorf("wildcard access to %q requires unrestricted column scope", table)
	}
	return fmt.Errorf("column %q.%q not in scope", table, column)
}
