//go:build !wasm
// +build !wasm

// Package gorm stores session tokens in a relational database through
// GORM. It supports any database GORM supports (PostgreSQL, MySQL, SQLite,
// etc.) and lets several app instances share sessions.
//
// # Database Schema
//
// AutoMigrate creates one table, token_sets, keyed by session id.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	store := gormstore.New(db)
//	session := authclient.NewSessionManager(provider, store.ForSession(sid))
package gorm
