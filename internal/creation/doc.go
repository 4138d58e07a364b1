// Package creation drives the influencer creation flow.
//
// A session moves through server-owned statuses (pending, generating_images,
// images_ready, generating_persona, persona_ready, complete) with failed as an
// overlay. Apply folds fetch results and status_update events into State
// through one status-to-step mapping, so a restored session lands on the same
// step a live one would. Flow owns the API calls, the persisted session id and
// the stream subscription.
package creation
