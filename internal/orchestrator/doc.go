// Package orchestrator drives the research-to-post flow: the server plans
// research sub-tasks, the user reviews and edits the plan, research runs,
// the user curates results, and a post is generated.
//
// Plan edits are held locally until SubmitPlan. Server plan payloads are
// merged three ways (confirmed fields, local drafts, and a sequence number
// per edit) so a payload older than an edit cannot discard it.
package orchestrator
