// Package config provides configuration management for the Chatello gateway.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and then treated as immutable: the resulting *Config is passed to
// component constructors instead of being read from the environment inside
// request handlers.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// A .env file can be loaded into the environment beforehand with LoadDotEnv.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CHATELLO_SECTION_FIELD:
//
//   - CHATELLO_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CHATELLO_STORAGE_BACKEND overrides storage.backend
//   - CHATELLO_PROVIDERS_OPENAI_API_KEY overrides providers.openai.api_key
//
// Provider API keys also fall back to OPENAI_API_KEY, ANTHROPIC_API_KEY and
// DEEPSEEK_API_KEY, and the Mongo connection to MONGODB_URI and
// MONGODB_DATABASE.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
package config
