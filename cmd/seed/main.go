package main

import (
	"fmt"
	"log"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/database"
	"github.com/roadwarden/roadwarden/internal/models"
)

// Seeds a demo configuration: request types with URL and IP rules, member
// groups and a starter rule set, so a fresh install has something to evaluate.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}
	fmt.Println("✓ Database migrated successfully")

	requestTypes := []models.RequestType{
		{
			Title:       "login",
			Description: "Authentication endpoints",
			URLRules: []models.URLRule{
				{Pattern: `^/api/v1/auth/login`, Order: 1, Enabled: true},
				{Pattern: `^/login`, Order: 2, Enabled: true},
			},
		},
		{
			Title:       "search",
			Description: "Search endpoints, expensive to serve",
			URLRules: []models.URLRule{
				{Pattern: `^/search\b`, Order: 1, Enabled: true},
			},
		},
		{
			Title:       "content",
			Description: "General content pages",
			URLRules: []models.URLRule{
				{Pattern: `^/`, Order: 100, Enabled: true},
			},
		},
	}
	for _, rt := range requestTypes {
		result := db.Where("title = ?", rt.Title).FirstOrCreate(&rt)
		if result.Error != nil {
			log.Printf("Failed to seed request type %s: %v", rt.Title, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created request type: %s\n", rt.Title)
		} else {
			fmt.Printf("  Request type already exists: %s\n", rt.Title)
		}
	}

	ipRules := []models.IPRule{
		{Permission: models.IPPermissionAllowed, IPAddress: "10.0.0.0/8", Description: "Internal network", Enabled: true},
		{Permission: models.IPPermissionAllowed, IPAddress: "127.0.0.1", Description: "Loopback", Enabled: true},
		{Permission: models.IPPermissionDenied, IPAddress: "198.51.100.0-198.51.100.255", Description: "Known scraper range", Enabled: true},
	}
	for _, rule := range ipRules {
		result := db.Where("permission = ? AND ip_address = ?", rule.Permission, rule.IPAddress).FirstOrCreate(&rule)
		if result.Error != nil {
			log.Printf("Failed to seed IP rule %s: %v", rule.IPAddress, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created IP rule: %s %s\n", rule.Permission, rule.IPAddress)
		}
	}

	var denied models.IPRule
	if err := db.Where("permission = ? AND ip_address = ?", models.IPPermissionDenied, "198.51.100.0-198.51.100.255").First(&denied).Error; err == nil {
		var allTypes []models.RequestType
		db.Find(&allTypes)
		if err := db.Model(&denied).Association("RequestTypes").Replace(allTypes); err != nil {
			log.Printf("Failed to attach denied range to request types: %v", err)
		}
	}

	groups := []models.Group{
		{Code: "staff", Title: "Staff", Permissions: "trusted,reports"},
		{Code: "subscriber", Title: "Subscribers", Permissions: "trusted"},
	}
	for _, group := range groups {
		result := db.Where("code = ?", group.Code).FirstOrCreate(&group)
		if result.Error != nil {
			log.Printf("Failed to seed group %s: %v", group.Code, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created group: %s\n", group.Code)
		}
	}

	var loginType, searchType models.RequestType
	db.Where("title = ?", "login").First(&loginType)
	db.Where("title = ?", "search").First(&searchType)

	rules := []models.Rule{
		{
			Title:                    "Login brute force",
			Level:                    models.RuleLevelGlobal,
			Verb:                     "POST",
			Count:                    10,
			StartOffset:              300,
			LoginAttemptsNumber:      5,
			LoginAttemptsStatus:      models.LoginAttemptFailed,
			LoginAttemptsStartOffset: 300,
			Score:                    100,
			NotifyAdmin:              true,
			Enabled:                  true,
			RequestTypes:             []models.RequestType{loginType},
		},
		{
			Title:                  "Search hammering",
			Level:                  models.RuleLevelSession,
			Verb:                   "any",
			Count:                  30,
			StartOffset:            60,
			Score:                  50,
			Cumulative:             true,
			ExcludeGroup:           true,
			GroupCode:              "staff",
			ExcludeUnauthenticated: false,
			NotifyAdmin:            true,
			Enabled:                true,
			RequestTypes:           []models.RequestType{searchType},
		},
		{
			Title:        "Denied range touch",
			Level:        models.RuleLevelSession,
			Verb:         "any",
			Count:        1,
			StartOffset:  3600,
			IPMode:       models.IPModeDenied,
			Score:        0,
			NotifyAdmin:  true,
			Enabled:      true,
			RequestTypes: []models.RequestType{loginType, searchType},
		},
	}
	for _, rule := range rules {
		result := db.Where("title = ?", rule.Title).FirstOrCreate(&rule)
		if result.Error != nil {
			log.Printf("Failed to seed rule %s: %v", rule.Title, result.Error)
		} else if result.RowsAffected > 0 {
			fmt.Printf("✓ Created rule: %s\n", rule.Title)
		} else {
			fmt.Printf("  Rule already exists: %s\n", rule.Title)
		}
	}

	fmt.Println("✓ Seed complete")
}
