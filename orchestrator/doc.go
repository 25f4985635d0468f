// Package orchestrator drives a document through the three-stage extraction
// pipeline: base analysis, specialized refinement and final verification.
//
// The controller is an explicit state machine. Within a stage every eligible
// agent runs concurrently and the stage completes only when all of them have
// returned (join-all). Results are merged into the consolidated data by the
// coordinating goroutine after the barrier, so the consolidated mapping is
// never shared between goroutines.
//
// Stage flow:
//
//	Stage1 base analysis ──(confidence < 85 or conflicts)──▶ Stage2 specialized refinement
//	Stage2 ──(confidence < 95 and a critical field missing)──▶ Stage3 final verification
//	any stage ──(otherwise)──▶ Done
//
// At most three iterations run; iteration i is always stage i.
package orchestrator
