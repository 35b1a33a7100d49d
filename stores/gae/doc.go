//go:build !wasm
// +build !wasm

// Package gae stores session tokens in Google Cloud Datastore. It is meant
// for apps deployed on Google Cloud Platform and supports multi-tenancy
// through Datastore namespaces.
//
// # Datastore Kinds
//
//   - TokenSet: the tokens of one session, keyed by session id
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.New(client, "")  // default namespace
//	session := authclient.NewSessionManager(provider, store.ForSession(sid))
package gae
