// Package validator provides declarative input validation for auth flow
// entry points.
//
// Validation is expressed as rules applied together, with all failures
// collected into a single ValidationErrors value:
//
//	err := validator.Apply(
//	    validator.ValidEmail("email", email),
//	    validator.RequiredString("first_name", firstName),
//	)
//
// The package also hosts the institutional-domain predicate: an allowlist of
// email domains, loadable from a YAML file, used to restrict sign-up to
// institution-issued addresses. Validation errors are resolved locally and
// never reach the identity provider.
package validator
