package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// DeliveryInput is the input for the report delivery workflow.
type DeliveryInput struct {
	EntryID string
}

// DeliveryWorkflow drives one queued report out of the outbox: archive
// it in the document store, deliver it to the submission endpoint, then
// confirm and remove the entry. If delivery fails after the archive
// write, the archived copy is removed again (saga compensation) and the
// entry stays queued for the next flush pass.
func DeliveryWorkflow(ctx workflow.Context, input DeliveryInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting report delivery workflow", "entryID", input.EntryID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Load the queued entry
	var payload []byte
	err := workflow.ExecuteActivity(ctx, "LoadEntry", input.EntryID).Get(ctx, &payload)
	if err != nil {
		return err
	}
	if payload == nil {
		// Already flushed by another path; nothing to do.
		logger.Info("entry no longer queued", "entryID", input.EntryID)
		return nil
	}

	// Step 2: Archive the report in the document store
	var reportID string
	err = workflow.ExecuteActivity(ctx, "ArchiveReport", payload).Get(ctx, &reportID)
	if err != nil {
		return err
	}

	// Step 3: Deliver to the submission endpoint
	err = workflow.ExecuteActivity(ctx, "DeliverReport", payload).Get(ctx, nil)
	if err != nil {
		logger.Warn("delivery failed, compensating", "error", err)
		// Compensate: remove the archived copy, keep the entry queued
		_ = workflow.ExecuteActivity(ctx, "DeleteArchivedReport", reportID).Get(ctx, nil)
		return err
	}

	// Step 4: Confirm delivery and drop the outbox entry
	err = workflow.ExecuteActivity(ctx, "ConfirmDelivery", input.EntryID).Get(ctx, nil)
	if err != nil {
		return err
	}

	logger.Info("Report delivered", "entryID", input.EntryID)
	return nil
}
