// Package dbtest starts a throwaway Postgres for repository tests. It is
// only built with the integration tag.
package dbtest
