package entitlement

import (
	"testing"
	"time"

	"github.com/sharc-db/sharc/internal/sharcerr"
	"github.com/sharc-db/sharc/internal/storage/record"
)

func agentLookup(infos map[string]AgentInfo) func(string) (AgentInfo, bool) {
	return func(agentID string) (AgentInfo, bool) {
		info, ok := infos[agentID]
		return info, ok
	}
}

// TestColumnScopedReadSucceedsButWildcardFails mirrors §8 scenario S5:
// an agent scoped to "logs.message" may select that column, may not
// select "logs.level", and may not select "*" because the scope is
// restricted to specific columns.
func TestColumnScopedReadSucceedsButWildcardFails(t *testing.T) {
	e := New(agentLookup(map[string]AgentInfo{
		"agent-1": {AgentID: "agent-1", ReadScope: "logs.message"},
	}))

	if err := e.Enforce("agent-1", "logs", []string{"message"}); err != nil {
		t.Fatalf("expected column read to succeed, got %v", err)
	}
	if err := e.Enforce("agent-1", "logs", []string{"level"}); err == nil {
		t.Fatal("expected unauthorized-read for logs.level")
	} else if terr, ok := err.(*sharcerr.TrustError); !ok || terr.Kind != sharcerr.KindUnauthorizedRead {
		t.Fatalf("expected KindUnauthorizedRead, got %v", err)
	}
	if err := e.Enforce("agent-1", "logs", nil); err == nil {
		t.Fatal("expected wildcard select to be denied for a column-restricted scope")
	}
}

func TestEnforceWriteUsesWriteScope(t *testing.T) {
	e := New(agentLookup(map[string]AgentInfo{
		"writer": {AgentID: "writer", ReadScope: "logs.message", WriteScope: "logs"},
	}))
	if err := e.EnforceWrite("writer", "logs", []string{"level"}); err != nil {
		t.Fatalf("write scope covers all of logs, got %v", err)
	}
	if err := e.Enforce("writer", "logs", []string{"level"}); err == nil {
		t.Fatal("read scope should not grant logs.level")
	}
}

func TestEnforceSchemaAdmin(t *testing.T) {
	e := New(agentLookup(map[string]AgentInfo{
		"admin":    {AgentID: "admin", ReadScope: "*"},
		"nonadmin": {AgentID: "nonadmin", ReadScope: "logs"},
	}))
	if err := e.EnforceSchemaAdmin("admin"); err != nil {
		t.Fatalf("wildcard scope should grant schema admin, got %v", err)
	}
	if err := e.EnforceSchemaAdmin("nonadmin"); err == nil {
		t.Fatal("expected unauthorized-schema")
	}
}

func TestEnforceAllIsAtomic(t *testing.T) {
	e := New(agentLookup(map[string]AgentInfo{
		"agent-1": {AgentID: "agent-1", ReadScope: "logs.message"},
	}))
	err := e.EnforceAll("agent-1", []TableColumns{
		{Table: "logs", Columns: []string{"message"}},
		{Table: "widgets", Columns: []string{"price"}},
	})
	if err == nil {
		t.Fatal("expected the second table to fail the compound check")
	}
}

func TestUnknownAgentIsRejected(t *testing.T) {
	e := New(agentLookup(nil))
	if err := e.Enforce("ghost", "logs", nil); err == nil {
		t.Fatal("expected unknown-agent error")
	}
}

func TestValidityWindowExpired(t *testing.T) {
	e := &Enforcer{
		Lookup: agentLookup(map[string]AgentInfo{
			"agent-1": {AgentID: "agent-1", ReadScope: "*", ValidityEnd: 100},
		}),
		Now: func() time.Time { return time.Unix(200, 0) },
	}
	if err := e.Enforce("agent-1", "logs", nil); err == nil {
		t.Fatal("expected agent-expired error past the validity window")
	} else if terr, ok := err.(*sharcerr.TrustError); !ok || terr.Kind != sharcerr.KindAgentExpired {
		t.Fatalf("expected KindAgentExpired, got %v", err)
	}
}

func TestEntitlementRowEvaluatorFiltersByTag(t *testing.T) {
	payload, err := record.EncodeRecord([]any{"public", "hello world"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ev := &EntitlementRowEvaluator{TagColumn: 0, AllowedTags: map[string]bool{"public": true}}
	ok, err := ev.Allow(1, payload)
	if err != nil || !ok {
		t.Fatalf("expected public-tagged row to pass, ok=%v err=%v", ok, err)
	}

	payload2, err := record.EncodeRecord([]any{"secret", "classified"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ok2, err := ev.Allow(2, payload2)
	if err != nil || ok2 {
		t.Fatalf("expected secret-tagged row to be filtered, ok=%v err=%v", ok2, err)
	}
}
