// Package github is a small typed client for the GitHub Actions REST
// endpoints used to read back a finished workflow run: the run attempt
// itself and its paginated job list.
//
// Responses are decoded into permissive wire types (pointers for every
// field GitHub may report as null). Validation into the strict model
// happens in package workflow, never here.
package github
