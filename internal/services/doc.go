// Package services holds the error taxonomy and context plumbing shared by
// the platform clients and pipeline stages.
//
// Every failure a stage can surface is tagged with one of the exported
// sentinel errors so callers can classify severity with errors.Is without
// parsing messages. Wrap attaches stage and operation context to a tagged
// error in one call.
package services
