package pkgrelay

import (
	"github.com/bianoble/pkgrelay/internal/engine"
	"github.com/bianoble/pkgrelay/internal/registry"
	"github.com/bianoble/pkgrelay/internal/stepcache"
)

// Type aliases re-export engine result types as the public API.

type Error = engine.Error
type PublishResult = engine.PublishResult
type PublishCall = registry.PublishCall
type Resolution = engine.Resolution
type InspectResult = engine.InspectResult
type PinResult = engine.PinResult
type PruneResult = engine.PruneResult
type PruneAction = engine.PruneAction
type InfoResult = engine.InfoResult
type AlterResult = engine.AlterResult
type AlterCommand = engine.AlterCommand

// AlterCommands lists the edits Alter supports.
var AlterCommands = engine.AlterCommands

// Step build cache types.

type StepRunner = stepcache.Runner
type StepConfig = stepcache.RunConfig
type StepState = stepcache.State
type StepRecord = stepcache.Record
type StepTxn = stepcache.Txn
type StepExecutor = stepcache.Executor
type StepSigner = stepcache.Signer
type StepSignerSource = stepcache.SignerSource
type BuildContext = stepcache.BuildContext
