// Package checkpoint moves state snapshots between replicas during
// healing. A transport stages the sender's state for one step, serves
// it to the recovering replicas named by the quorum, and is invalidated
// once the step's commit decision has been made: a checkpoint is only
// valid for the step it was taken at.
package checkpoint
