// Package catalog loads plan definitions from a YAML file and keeps them in
// sync with storage.
//
// A catalog file lists plans under a top-level plans key:
//
//	plans:
//	  - name: pro
//	    display_name: Pro
//	    price: 7.99
//	    currency: EUR
//	    monthly_requests: 1000
//	    requests_per_minute: 10
//	    requests_per_hour: 200
//	    monthly_budget: 4.0
//	    cost_per_1000_tokens: 0.0015
//	    features: [ai_included]
//	    max_sites: 3
//
// Plans are matched by name. Syncing upserts every plan in the file and
// drops the registry cache entries of the plans it touched, so the gate
// sees new limits on its next lookup. Plans missing from the file are left
// alone; deactivate them with is_active: false instead.
//
// The Watcher reloads the file on change. Events are debounced so that an
// editor's write-rename sequence results in one sync.
package catalog
