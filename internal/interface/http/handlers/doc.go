// Package handlers contains the gin handlers, middleware and health checks
// of the rewards API.
//
// Every failure is written as an ErrorEnvelope:
//
//	{"error": {"message": "insufficient funds", "code": "insufficient_funds"}}
//
// Domain error kinds map to statuses as follows:
//
//	validation          400 validation_error
//	not found           404 not_found
//	insufficient funds  422 insufficient_funds
//	already exists      409 already_exists
//	invalid state       409 invalid_state
//	anything else       500 internal_error (logged, message hidden)
//
// # Health Checks
//
// CompositeHealthChecker runs named checks in parallel:
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
package handlers
