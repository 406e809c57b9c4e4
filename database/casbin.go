package database

import (
	"fmt"

	"support-chat/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// Casbin builds the enforcer guarding operator routes. Policies live in the
// same database as the messages.
func Casbin(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casbin adapter: %w", err)
	}

	m, err := model.NewModelFromString(config.RBACModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	// Default policy
	if hasPolicy, _ := e.HasPolicy("admin", "/v1/admin*", "(GET)|(POST)|(PUT)|(DELETE)"); !hasPolicy {
		if _, err := e.AddPolicy("admin", "/v1/admin*", "(GET)|(POST)|(PUT)|(DELETE)"); err != nil {
			return nil, err
		}
	}
	if hasRole, _ := e.HasGroupingPolicy("operator", "admin"); !hasRole {
		if _, err := e.AddGroupingPolicy("operator", "admin"); err != nil {
			return nil, err
		}
	}

	return e, nil
}
