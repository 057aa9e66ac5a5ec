package models

import (
	"testing"
	"time"
)

func TestInitDB_InMemory(t *testing.T) {
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("database ping failed: %v", err)
	}
}

func TestInitDB_SeedsRoutingRulesOnce(t *testing.T) {
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	var count int64
	db.Model(&RoutingRule{}).Count(&count)
	if int(count) != len(DefaultRoutingRules) {
		t.Fatalf("expected %d rules, got %d", len(DefaultRoutingRules), count)
	}

	if err := SeedRoutingRules(db); err != nil {
		t.Fatalf("reseeding: %v", err)
	}
	db.Model(&RoutingRule{}).Count(&count)
	if int(count) != len(DefaultRoutingRules) {
		t.Errorf("seeding twice duplicated rules: got %d", count)
	}

	var rule RoutingRule
	if err := db.Where("from_role = ? AND to_role = ?", RoleWorker, RoleManager).First(&rule).Error; err != nil {
		t.Fatalf("finding worker->manager rule: %v", err)
	}
	if !rule.Allowed {
		t.Error("worker->manager should be allowed by the role table")
	}
}

func TestAgentType_Role(t *testing.T) {
	tests := []struct {
		typ  AgentType
		role Role
	}{
		{AgentTypeHuman, RoleHuman},
		{AgentTypeRightHand, RoleRightHand},
		{AgentTypeSecurity, RoleSecurity},
		{AgentTypeGuardian, RoleSecurity},
		{AgentTypeStrategy, RoleCoreCrew},
		{AgentTypeWellness, RoleCoreCrew},
		{AgentTypeCommunications, RoleCoreCrew},
		{AgentTypeManager, RoleManager},
		{AgentTypeWorker, RoleWorker},
		{AgentTypeSpecialist, RoleWorker},
		{AgentTypeHelp, RoleWorker},
	}
	for _, tt := range tests {
		if got := tt.typ.Role(); got != tt.role {
			t.Errorf("%s.Role() = %s, want %s", tt.typ, got, tt.role)
		}
	}
}

func TestAgentType_Valid(t *testing.T) {
	if !AgentTypeHelp.Valid() {
		t.Error("help should be valid")
	}
	if AgentType("director").Valid() {
		t.Error("director should not be valid")
	}
	if AgentTypeHuman.Rank() >= AgentTypeWorker.Rank() {
		t.Error("human should rank before worker")
	}
}

func TestEnums_Valid(t *testing.T) {
	if !PriorityCritical.Valid() || Priority("urgent").Valid() {
		t.Error("priority validation mismatch")
	}
	if !MessageStatusArchived.Valid() || MessageStatus("sent").Valid() {
		t.Error("message status validation mismatch")
	}
	if !DecisionReputationProtect.Valid() || DecisionType("ignore").Valid() {
		t.Error("decision type validation mismatch")
	}
	if !SeverityCodeRed.Valid() || MailboxSeverity("red").Valid() {
		t.Error("severity validation mismatch")
	}
	if !Contains(Moods, "energized") || Contains(Moods, "angry") {
		t.Error("mood validation mismatch")
	}
}

func TestPrivateSession_OneActivePerPair(t *testing.T) {
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	now := time.Now().UTC()

	first := PrivateSession{ID: "s1", HumanID: "h", AgentID: "a", Channel: "web",
		StartedAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour), TimeoutMinutes: 60, Active: true}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("creating session: %v", err)
	}

	dup := first
	dup.ID = "s2"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatal("expected unique violation for a second active session")
	}

	closed := first
	closed.ID = "s3"
	closed.Active = false
	closed.EndedBy = EndedByHuman
	if err := db.Create(&closed).Error; err != nil {
		t.Fatalf("inactive sessions must not collide: %v", err)
	}
}

func TestSettings_UniqueKey(t *testing.T) {
	db, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	s1 := Settings{Key: "crew_name", Value: "alpha"}
	if err := db.Create(&s1).Error; err != nil {
		t.Fatalf("creating setting: %v", err)
	}

	s2 := Settings{Key: "crew_name", Value: "beta"}
	if err := db.Create(&s2).Error; err == nil {
		t.Error("expected unique constraint error for duplicate key")
	}
}

func TestJSON_NilHandling(t *testing.T) {
	var j JSON

	if err := j.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if string(j) != "null" {
		t.Errorf("expected 'null', got %q", string(j))
	}

	var empty JSON
	data, err := empty.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("expected 'null', got %q", string(data))
	}

	var target []string
	if err := j.Decode(&target); err != nil || target != nil {
		t.Errorf("Decode of null should be a no-op, got %v, %v", target, err)
	}
}

func TestTrustConfig_Overrides(t *testing.T) {
	tc := TrustConfig{EscalationOverrides: MustJSON([]string{"direct_security_feed"})}
	got := tc.Overrides()
	if len(got) != 1 || got[0] != EscalationDirectSecurityFeed {
		t.Errorf("unexpected overrides: %v", got)
	}
}
