// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// DefaultNamespace prefixes live-path outcome keys. Bump the version when the
// stored shape changes so stale entries are never decoded.
const DefaultNamespace = "pip/v1/"

// ResultCache stores JSON values under fingerprint keys.
//
// Thread Safety: Safe for concurrent use.
type ResultCache struct {
	db        *DB
	namespace string
}

// NewResultCache returns a cache over db. An empty namespace uses
// DefaultNamespace.
func NewResultCache(db *DB, namespace string) *ResultCache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &ResultCache{db: db, namespace: namespace}
}

// Fingerprint hashes parts into a stable hex key. Parts are length-prefixed,
// so ("ab", "c") and ("a", "bc") differ.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s;", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ResultCache) key(k string) []byte {
	return []byte(c.namespace + k)
}

// Get decodes the value stored under key into v.
//
// Outputs:
//
//	bool - False if the key is absent.
//	error - Non-nil on storage or decode failure.
func (c *ResultCache) Get(ctx context.Context, key string, v any) (bool, error) {
	found := false
	err := c.db.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return found, nil
}

// Put stores v under key, replacing any previous value.
func (c *ResultCache) Put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	err = c.db.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(c.key(key), data)
	})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Len counts the entries in the cache namespace.
func (c *ResultCache) Len(ctx context.Context) (int, error) {
	n := 0
	err := c.db.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(c.namespace)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
