// Package kv provides a small Redis-like key-value abstraction with
// in-memory and Redis-backed implementations.
//
// Backends register themselves on import:
//
//	import (
//		"github.com/folio/folio-backend/pkg/kv"
//		_ "github.com/folio/folio-backend/pkg/kv/memory"
//		_ "github.com/folio/folio-backend/pkg/kv/redis"
//	)
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
// The shared conformance suite in kvtest is run against every backend.
package kv
