// Package config loads typed configuration structs from environment
// variables, with an optional .env file for development.
//
// Each configuration type is parsed once per process and cached, so packages
// can call Load for their own config without coordinating startup order:
//
//	type BridgeConfig struct {
//	    Endpoint    string        `env:"SESSION_BRIDGE_URL,required"`
//	    SettleDelay time.Duration `env:"SESSION_BRIDGE_SETTLE_DELAY" envDefault:"500ms"`
//	}
//
//	var cfg BridgeConfig
//	if err := config.Load(&cfg); err != nil { ... }
package config
