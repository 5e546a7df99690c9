// Package database provides connection management, configuration loading,
// logging, query hooks, driver error classification and the Executor used by
// SQL repositories, built on top of Bun.
package database
