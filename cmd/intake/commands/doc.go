// Package commands implements the intake CLI: catalogue inspection, offline
// validation, and an onboarding session driven from the terminal against the
// draft store and submission endpoint.
package commands
