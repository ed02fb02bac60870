// Package catalog registers the built-in connectors at process start.
package catalog

import (
	"fmt"

	"energylink/config"
	"energylink/connector"
	"energylink/connector/cme"
	"energylink/connector/guyana"
	"energylink/connector/sgx"
	"energylink/logger"
	"energylink/registry"
)

type builtin struct {
	id      string
	factory connector.Factory
	cfg     func(config.ConnectorsConfig) config.ConnectorConfig
}

// Builtins are registered in this order, which is also the FindBestExchange tie-break order.
var builtins = []builtin{
	{cme.ExchangeID, cme.New, func(c config.ConnectorsConfig) config.ConnectorConfig { return c.CME }},
	{guyana.ExchangeID, guyana.New, func(c config.ConnectorsConfig) config.ConnectorConfig { return c.Guyana }},
	{sgx.ExchangeID, sgx.New, func(c config.ConnectorsConfig) config.ConnectorConfig { return c.SGX }},
}

// Register adds every enabled built-in connector to reg.
func Register(reg *registry.Registry, cfg config.ConnectorsConfig, log *logger.Log) error {
	if log == nil {
		log = logger.GetLogger()
	}
	for _, b := range builtins {
		cc := b.cfg(cfg)
		if !cc.Enabled {
			log.WithComponent("catalog").WithFields(logger.Fields{"exchange": b.id}).Info("connector disabled by config")
			continue
		}
		if err := reg.RegisterConnector(b.id, b.factory, connector.Options{Config: cc, Log: log}); err != nil {
			return fmt.Errorf("register %s: %w", b.id, err)
		}
	}
	return nil
}
