//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based ar.IdentityStore.  It works with any
// database GORM supports; uniqueness errors are decoded for PostgreSQL
// (gorm.io/driver/postgres) and otherwise inferred by probing.
//
// # Database Schema
//
// EnsureSchema auto-migrates two tables:
//   - user_auths: accounts, with nullable unique user_name and email columns
//   - user_oauth_providers: provider links, unique on (provider, user_id)
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	store := gormstore.NewIdentityStore(db)
//	if err := store.EnsureSchema(); err != nil { ... }
//	repo := ar.NewRepository(store)
package gorm
