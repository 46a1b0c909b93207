// Package db provides the embedded migrations and seed data.
package db

import "embed"

// Migrations holds the golang-migrate files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Products is the demo catalog loaded by cmd/seed-db.
//
//go:embed seed/products.json
var Products []byte
