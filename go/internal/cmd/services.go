package main

import (
	"github.com/mcdev12/planningpoker/go/internal/gateway"
	"github.com/mcdev12/planningpoker/go/internal/janitor"
	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/mcdev12/planningpoker/go/internal/store"
)

type Services struct {
	Repository *poker.Repository
	Gateway    *gateway.Service
	Janitor    *janitor.Janitor
}

func setupServices(kv store.KV, config *Config) (*Services, error) {
	// Store → Repository → Controllers (per connection) → Gateway
	repo := poker.NewRepository(kv)

	policy, err := config.policy()
	if err != nil {
		return nil, err
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Policy = policy
	gatewayConfig.ConnectionConfig.DefaultCountdown = config.defaultCountdown()

	services := &Services{
		Repository: repo,
		Gateway:    gateway.NewService(gatewayConfig, repo),
	}

	if config.Cleanup.Schedule != "" {
		j, err := janitor.New(config.Cleanup, repo)
		if err != nil {
			return nil, err
		}
		services.Janitor = j
	}

	return services, nil
}
