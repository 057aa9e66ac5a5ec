package models

import (
	"fmt"

	"gorm.io/gorm"
)

// DefaultRoutingRules is the role table installed into a fresh database.
// Only the Crew Boss talks to the human under normal rules.
var DefaultRoutingRules = []RoutingRule{
	{FromRole: RoleRightHand, ToRole: RoleHuman, Allowed: true, Description: "Crew Boss delivers to human"},
	{FromRole: RoleRightHand, ToRole: RoleCoreCrew, Allowed: true, Description: "Crew Boss manages core crew"},
	{FromRole: RoleRightHand, ToRole: RoleSecurity, Allowed: true, Description: "Crew Boss manages security agent"},
	{FromRole: RoleRightHand, ToRole: RoleManager, Allowed: true, Description: "Crew Boss manages department managers"},
	{FromRole: RoleRightHand, ToRole: RoleWorker, Allowed: true, Description: "Crew Boss can reach any worker"},

	{FromRole: RoleHuman, ToRole: RoleRightHand, Allowed: true, Description: "Human directs Crew Boss"},
	{FromRole: RoleHuman, ToRole: RoleSecurity, Allowed: true, Description: "Human can reach security agent"},
	{FromRole: RoleHuman, ToRole: RoleCoreCrew, Allowed: true, Description: "Human can reach any agent"},
	{FromRole: RoleHuman, ToRole: RoleManager, Allowed: true, Description: "Human can reach any agent"},
	{FromRole: RoleHuman, ToRole: RoleWorker, Allowed: true, Description: "Human can reach any agent"},

	{FromRole: RoleSecurity, ToRole: RoleRightHand, Allowed: true, Description: "Security reports to Crew Boss"},
	{FromRole: RoleSecurity, ToRole: RoleHuman, Allowed: true, Description: "Guardian can reach human directly"},
	{FromRole: RoleSecurity, ToRole: RoleCoreCrew, Allowed: false, Description: "Security cannot message core crew"},
	{FromRole: RoleSecurity, ToRole: RoleManager, Allowed: false, Description: "Security cannot message managers"},
	{FromRole: RoleSecurity, ToRole: RoleWorker, Allowed: false, Description: "Security cannot message workers"},

	{FromRole: RoleCoreCrew, ToRole: RoleRightHand, Allowed: true, Description: "Core crew reports to Crew Boss"},
	{FromRole: RoleCoreCrew, ToRole: RoleHuman, Allowed: false, Description: "Core crew must go through Crew Boss"},
	{FromRole: RoleCoreCrew, ToRole: RoleCoreCrew, Allowed: false, Description: "Core crew cannot message each other"},
	{FromRole: RoleCoreCrew, ToRole: RoleSecurity, Allowed: false, Description: "Core crew cannot message security"},
	{FromRole: RoleCoreCrew, ToRole: RoleManager, Allowed: false, Description: "Core crew cannot message managers directly"},
	{FromRole: RoleCoreCrew, ToRole: RoleWorker, Allowed: false, Description: "Core crew cannot message workers directly"},

	{FromRole: RoleManager, ToRole: RoleRightHand, Allowed: true, Description: "Managers report to Crew Boss"},
	{FromRole: RoleManager, ToRole: RoleWorker, Allowed: true, Description: "Managers message their workers"},
	{FromRole: RoleManager, ToRole: RoleHuman, Allowed: false, Description: "Managers must go through Crew Boss"},
	{FromRole: RoleManager, ToRole: RoleManager, Allowed: false, Description: "Managers cannot message other managers"},
	{FromRole: RoleManager, ToRole: RoleCoreCrew, Allowed: false, Description: "Managers cannot message core crew"},
	{FromRole: RoleManager, ToRole: RoleSecurity, Allowed: false, Description: "Managers cannot message security"},

	{FromRole: RoleWorker, ToRole: RoleManager, Allowed: true, Description: "Workers report to their manager"},
	{FromRole: RoleWorker, ToRole: RoleRightHand, Allowed: true, Description: "Workers can safety-escalate to Crew Boss"},
	{FromRole: RoleWorker, ToRole: RoleHuman, Allowed: false, Description: "Workers cannot message human directly"},
	{FromRole: RoleWorker, ToRole: RoleWorker, Allowed: false, Description: "Workers cannot message other workers"},
	{FromRole: RoleWorker, ToRole: RoleCoreCrew, Allowed: false, Description: "Workers cannot message core crew"},
	{FromRole: RoleWorker, ToRole: RoleSecurity, Allowed: false, Description: "Workers cannot message security"},
}

// SeedRoutingRules installs DefaultRoutingRules once. Existing rules are left
// untouched so administrative edits survive restarts.
func SeedRoutingRules(db *gorm.DB) error {
	var count int64
	if err := db.Model(&RoutingRule{}).Count(&count).Error; err != nil {
		return fmt.Errorf("counting routing rules: %w", err)
	}
	if count > 0 {
		return nil
	}
	rules := make([]RoutingRule, len(DefaultRoutingRules))
	copy(rules, DefaultRoutingRules)
	if err := db.Create(&rules).Error; err != nil {
		return fmt.Errorf("seeding routing rules: %w", err)
	}
	return nil
}
