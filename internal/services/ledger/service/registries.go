package service

import (
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/transfer"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/workflow"
)

// Registries holds the command and event registries of every ledger aggregate.
type Registries struct {
	Commands *command.Registry
	Events   *event.Registry
}

// BuildRegistries registers the wallet, saga and workflow definitions.
func BuildRegistries() (Registries, error) {
	registries := Registries{
		Commands: command.NewRegistry(),
		Events:   event.NewRegistry(),
	}
	modules := []struct {
		name     string
		commands func(*command.Registry) error
		events   func(*event.Registry) error
	}{
		{name: wallet.AggregateType, commands: wallet.RegisterCommands, events: wallet.RegisterEvents},
		{name: transfer.AggregateType, commands: transfer.RegisterCommands, events: transfer.RegisterEvents},
		{name: workflow.AggregateType, commands: workflow.RegisterCommands, events: workflow.RegisterEvents},
	}
	for _, module := range modules {
		if err := module.commands(registries.Commands); err != nil {
			return Registries{}, fmt.Errorf("register %s commands: %w", module.name, err)
		}
		if err := module.events(registries.Events); err != nil {
			return Registries{}, fmt.Errorf("register %s events: %w", module.name, err)
		}
	}
	return registries, nil
}
