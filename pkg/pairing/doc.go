// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package pairing is the orchestration and validation core of replicactl.

# Problem Statement

Cross-cluster volume replication on SolidFire is a set of metadata
relationships spread over two independently administered clusters.
Either cluster can be changed out-of-band at any time, several of the
mutations are irreversible or only partially reversible, and the order
of calls across the two endpoints is semantically load-bearing (pause
before resize before resume). The hard part is therefore not any single
remote call but the validation-and-sequencing discipline around them.

# Rules every component follows

 1. Re-derive remote state immediately before mutating. No component
    caches cluster pair or volume pair records across operations.
 2. Validate all invariants before the first mutation wherever the API
    allows it (validate-all-then-commit-all for batches).
 3. Never roll back. A failure partway through a multi-phase action
    leaves the documented intermediate state in place and returns a
    PartialFailureError carrying manual-remediation guidance. Automatic
    compensation against live storage arrays would change operational
    semantics, so it is deliberately absent.
 4. Never retry. Any remote-call failure is fatal for the current
    operation.
 5. Strictly sequential: one synchronous call at a time, never to both
    clusters concurrently within one operation.

# Components

  - Inspector: cluster-level pairing snapshots and the exclusive mutual
    pairing gate every mutating operation sits behind.
  - Catalog: paired-volume enumeration and mismatch detection.
  - Lifecycle: cluster and volume pair creation and removal.
  - Attributes: replication mode, pause/resume, unilateral access flips.
  - Resizer: pause→resize→resume growth choreography.
  - Reverser: replication direction reversal with a cancellable grace
    countdown.
  - Primer: destination volume creation from source templates.
  - Snapshotter: crash-consistent snapshots of every paired volume.

Components return typed errors (see errors.go); mapping those to
process exit codes is the CLI boundary's job.
*/
package pairing
