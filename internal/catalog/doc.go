// Package catalog resolves the runtime names robots declare to container
// images. Images live in memory, in a watched YAML file or in PostgreSQL.
package catalog
