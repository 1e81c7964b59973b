// Package models contains the GORM persistence models for the ledger tables.
// They are kept apart from the domain types in internal/domain/ledger so the
// domain stays free of ORM tags; each model converts with ToDomain and a
// *FromDomain constructor.
//
// The GORM tags mirror migrations/000001_create_ledger.up.sql closely enough
// for AutoMigrate to build an equivalent SQLite schema. CHECK constraints
// exist only in the SQL migration.
package models
