// Package classifier talks to the external HTS classification service.
// The service is a single proxy endpoint that dispatches on an action name
// (preprocess, parse, rules, rulings). The HTTP client adds a call timeout,
// retries for transient failures, client-side rate limiting and a short-lived
// response cache.
package classifier
