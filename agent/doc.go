// Package agent invokes a single specialized agent against a pre-processed
// document. The package focuses on three concerns:
//
//  1. Prompt assembly (role + rendered catalog template + JSON-only directive,
//     page image first when one exists, text truncated to a budget)
//  2. Resilient backend calls (per-agent timeout, retries with exponential
//     backoff, shared per-run call limiter)
//  3. Response interpretation (code-fence stripping, JSON object decoding,
//     model-reported or heuristic confidence, conflict markers, schema check)
//
// Execution Model:
//   - Invoker.Invoke never returns an error; every failure becomes a fallback
//     result with confidence 30 and a coded conflict marker
//   - Agents whose descriptor has UsesModel=false are answered locally by
//     InferMetadata with a fixed confidence
//   - Every backend attempt is returned as a core.Exchange for the audit trail
//
// Registry state and stage orchestration live in the registry and
// orchestrator packages.
package agent
