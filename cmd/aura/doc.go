// Package main hosts the aura CLI entrypoint and command graph.
//
// The Cobra command tree drives the studio backend from a terminal: sign in,
// run the influencer creation flow, plan and review orchestrated research,
// create and follow posts, and watch live progress. Configuration resolution,
// logging setup, and the shared runtime (API client, event stream, workflow
// state machines) live in the command context so subcommands stay focused on
// presentation.
//
// Keep this package lean: add behaviour to the internal packages first, then
// surface it through a command or flag here.
package main
