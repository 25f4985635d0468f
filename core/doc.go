// Package core provides the foundational domain types shared by every
// InvoiceMesh package. It defines:
//
//   - Documents (pre-processed pages, extracted text, quality classification)
//   - Agent descriptors and the per-call AgentResult
//   - Iteration results and the top-level OrchestrationRun audit trail
//   - Prompt parts (text and image segments sent to a completion backend)
//   - Audit events, the per-run CallLimiter and the error taxonomy
//
// The package holds no behaviour beyond small helpers on these types; the
// invoker, registry, controller and recorder live in their own packages and
// only exchange values defined here.
package core
