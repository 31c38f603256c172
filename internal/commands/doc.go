// Package commands loads markdown command templates for the /api/command route.
//
// A command named "review" lives in review.md inside the configured directory.
// Every occurrence of $ARGUMENTS in the file is replaced by the caller's
// arguments, and the result becomes the engine instructions for a fresh
// conversation.
package commands
