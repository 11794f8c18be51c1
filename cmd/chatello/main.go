// Chatello is the license and metered AI proxy backend for the Chatello
// WordPress plugin.
//
// It validates plugin licenses, enforces per-plan quotas, rate limits, and
// monthly budgets, proxies chat requests to AI providers, and records usage
// for reporting and daily analytics.
//
// Usage:
//
//	# Start the API server
//	chatello serve --config config.yaml
//
//	# Seed or sync the plan catalog
//	chatello plans seed --file plans.yaml
//
//	# Issue a license
//	chatello license create --email owner@example.com --plan pro
//
//	# Generate an admin API key
//	chatello admin new-key --name ops
package main

import "os"

func main() {
	os.Exit(Execute())
}
