/*
Package store provides BoltDB-backed persistence for task documents.

The store package implements a small document-store interface over BoltDB:
one bucket per collection, JSON-encoded documents keyed by 32 character hex
ids, and an in-memory query matcher with a mongo-flavoured operator set.
Task records survive daemon restarts, which is what makes queued work
durable and recovery after a crash possible.

# Architecture

	┌──────────────────── BOLTDB STORAGE ─────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                       │          │
	│  │  - File: <db.url> (single file)            │          │
	│  │  - Format: B+tree with MVCC                │          │
	│  │  - Transactions: ACID with fsync           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Bucket Structure                 │          │
	│  │  ┌────────────────────────────┐            │          │
	│  │  │ <db.name>   (task id)      │            │          │
	│  │  └────────────────────────────┘            │          │
	│  │  One bucket per collection, created on     │          │
	│  │  open and lazily on first write.           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Query Matcher                   │          │
	│  │  - Full bucket scan per query              │          │
	│  │  - Equality plus $eq $ne $in $gt $gte      │          │
	│  │    $lt $lte                                │          │
	│  │  - Numeric coercion to float64             │          │
	│  └────────────────────────────────────────────┘          │
	│                                                          │
	└──────────────────────────────────────────────────────────┘

# Core Components

BoltStore:
  - Implements Store over a single BoltDB file
  - Documents are map[string]any, serialized as JSON
  - Ids are uuid4 hex tokens, assigned by Insert
  - Thread-safe via BoltDB's transaction model

Query:
  - map[string]any; plain values match by equality
  - map values are operator sets ({"$in": [...]})
  - SanitizeIDs validates id clauses before a scan runs

Faults:
  - UserFault: caller-supplied input was bad (invalid id strings)
  - ApplicationFault: the store itself rejected the operation
  - Checked with IsUserFault / IsApplicationFault (errors.As inside)

# Operations

Insert:
  - Generates a hex id, writes it into the document, puts JSON bytes
  - Encode failures are application faults

Find / FindOne:
  - Cursor scan with the query matcher applied per document
  - FindOne returns the first match in key order, nil when absent

Next:
  - Returns the match with the smallest numeric sortBy value
  - Ties keep the lowest key; documents missing the field lose
  - This is the dispatch primitive: smaller priority runs first

UpdateOne:
  - Read-merge-write inside one transaction
  - Patch fields overwrite, everything else is preserved
  - Unknown id is an error, never an upsert

Remove:
  - Deletes every match, returns the count

# Usage

Creating a store:

	st, err := store.NewBoltStore("/var/lib/procpool/tasks.db", "tasks")
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

Round trip:

	id, err := st.Insert("tasks", map[string]any{
		"cmd":      []string{"echo", "hello"},
		"priority": 100,
		"status":   "queued",
	})

	doc, err := st.FindOne("tasks", store.Query{"id": id})

	next, err := st.Next("tasks", store.Query{
		"status": map[string]any{"$in": []string{"queued"}},
	}, "priority")

	err = st.UpdateOne("tasks", id, map[string]any{"status": "fetched"})

	n, err := st.Remove("tasks", store.Query{"status": "finished"})

# Integration Points

This package integrates with:

  - pkg/task: the registry persists and reloads records through Store
  - pkg/daemon: opens the store at boot, closes it on shutdown
  - pkg/api: query endpoint passes client queries through SanitizeIDs
  - cmd/procpool-migrate: rewrites legacy documents in place

# Design Patterns

Documents over structs:
  - The store deals in map[string]any, not typed entities
  - Callers carry extra fields through storage untouched
  - pkg/types converts between maps and the Task struct

Scan and filter:
  - Queries are full bucket scans with an in-memory predicate
  - Fine for the workloads this daemon sees (thousands of tasks)
  - Secondary indexes are not worth their complexity here

Error Wrapping:
  - Store errors wrapped with context: fmt.Errorf("op failed: %w", err)
  - Fault types preserved through wrapping for errors.As checks

# Performance Characteristics

  - Get by id: O(log n) via B+tree
  - Query: O(n) scan plus JSON decode per document
  - Writes: serialized by BoltDB, fsync on commit
  - Database file: single file, grows with task history

# See Also

  - pkg/task for the record layer built on top of this package
  - pkg/types for the Task document shape
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package store
