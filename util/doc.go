// Package util provides small generic helpers shared across restkit,
// currently pointer and zero-value utilities.
package util
