// Package api defines the shared contracts of the reins integration
// runtime: the types exchanged between subsystems, the domain error kinds,
// and the service locator through which packages reach each other's
// handlers without importing each other.
//
// The locator pattern keeps the dependency graph acyclic: concrete packages
// (service, tools, workspace) register their handler on startup and every
// consumer goes through api.GetX(). Tests call ResetForTesting between
// cases.
package api
