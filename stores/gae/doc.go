//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore ar.IdentityStore.
//
// # Datastore Kinds
//
//   - UserAuth: accounts, keyed by ID
//   - UserAuthName: username reservations, keyed by username
//   - UserAuthEmail: email reservations, keyed by email
//   - UserOAuthProvider: provider links, keyed by provider + ":" + user id
//
// Reservations are written in the same transaction as the account, which is
// what makes usernames and emails unique.
//
// # Namespacing
//
// Pass a namespace to isolate tenants:
//
//	store := gae.NewIdentityStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewIdentityStore(client, "")  // default namespace
//	repo := ar.NewRepository(store.WithContext(ctx))
package gae
