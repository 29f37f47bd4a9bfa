package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aitzolm/basomap/internal/core/domain"
	"github.com/aitzolm/basomap/internal/core/ports"
)

// DeliveryActivities holds the activity implementations for the report
// delivery workflow.
type DeliveryActivities struct {
	Outbox    ports.OutboxStore
	Reports   ports.ReportRepository
	Endpoint  ports.ReportEndpoint
	Identity  ports.IdentityProvider
	Publisher ports.EventPublisher
}

// LoadEntry returns the payload of a queued entry, or nil when the
// entry has already been flushed.
func (a *DeliveryActivities) LoadEntry(ctx context.Context, entryID string) ([]byte, error) {
	entries, err := a.Outbox.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	for _, e := range entries {
		if e.ID == entryID {
			return e.Payload, nil
		}
	}
	return nil, nil
}

// ArchiveReport writes the report to the document store and returns the
// stored ID.
func (a *DeliveryActivities) ArchiveReport(ctx context.Context, payload []byte) (string, error) {
	var report domain.WorkReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return "", fmt.Errorf("decode report payload: %w", err)
	}
	if err := a.Reports.Create(ctx, &report); err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}
	return report.ID, nil
}

// DeliverReport posts the payload to the submission endpoint with the
// service identity.
func (a *DeliveryActivities) DeliverReport(ctx context.Context, payload []byte) error {
	token, err := a.Identity.IDToken(ctx)
	if err != nil {
		return fmt.Errorf("service token: %w", err)
	}
	return a.Endpoint.Send(ctx, payload, token)
}

// ConfirmDelivery removes the entry from the outbox and announces the
// send.
func (a *DeliveryActivities) ConfirmDelivery(ctx context.Context, entryID string) error {
	if err := a.Outbox.Delete(ctx, entryID); err != nil {
		return fmt.Errorf("delete entry %s: %w", entryID, err)
	}
	if a.Publisher != nil {
		_ = a.Publisher.PublishReportSent(ctx, entryID)
	}
	return nil
}

// DeleteArchivedReport removes an archived report (saga compensation /
// rollback).
func (a *DeliveryActivities) DeleteArchivedReport(ctx context.Context, reportID string) error {
	if err := a.Reports.Delete(ctx, reportID); err != nil {
		return fmt.Errorf("delete report %s: %w", reportID, err)
	}
	log.Printf("Report %s deleted (saga compensation)", reportID)
	return nil
}
