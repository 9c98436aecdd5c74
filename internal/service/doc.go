// Package service wires the integration runtime together: registry,
// state machines, vault, refresh manager, tool registry, and the
// meta-tool. One service instance exists per process; it registers
// itself with the api locator on construction and the locator's reset
// hook tears it down in tests.
package service
