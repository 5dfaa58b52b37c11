package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/frankbria/auto-author-sub003/internal/models"
)

func TestSyncBus_DeliversToSubscribersOfSameBook(t *testing.T) {
	bus := NewSyncBus(nil)
	bookID := uuid.New()
	otherBook := uuid.New()

	var received []models.StructuralChange
	unsubscribe := bus.Subscribe(bookID, func(c models.StructuralChange) {
		received = append(received, c)
	})
	defer unsubscribe()

	var otherReceived int
	defer bus.Subscribe(otherBook, func(models.StructuralChange) { otherReceived++ })()

	change := models.StructuralChange{BookID: bookID, Version: 3, Added: []uuid.UUID{uuid.New()}}
	bus.Publish(context.Background(), change)

	if len(received) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(received))
	}
	if received[0].Version != 3 {
		t.Errorf("Expected version 3, got %d", received[0].Version)
	}
	if otherReceived != 0 {
		t.Errorf("Expected no deliveries for the other book, got %d", otherReceived)
	}
}

func TestSyncBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewSyncBus(nil)
	bookID := uuid.New()

	count := 0
	unsubscribe := bus.Subscribe(bookID, func(models.StructuralChange) { count++ })

	bus.Publish(context.Background(), models.StructuralChange{BookID: bookID, Version: 1, Removed: []uuid.UUID{uuid.New()}})
	unsubscribe()
	bus.Publish(context.Background(), models.StructuralChange{BookID: bookID, Version: 2, Removed: []uuid.UUID{uuid.New()}})

	if count != 1 {
		t.Errorf("Expected exactly 1 delivery after unsubscribe, got %d", count)
	}
}

func TestSyncBus_MultipleSubscribersPerBook(t *testing.T) {
	bus := NewSyncBus(nil)
	bookID := uuid.New()

	first, second := 0, 0
	defer bus.Subscribe(bookID, func(models.StructuralChange) { first++ })()
	defer bus.Subscribe(bookID, func(models.StructuralChange) { second++ })()

	bus.Publish(context.Background(), models.StructuralChange{BookID: bookID, Version: 1, Added: []uuid.UUID{uuid.New()}})

	if first != 1 || second != 1 {
		t.Errorf("Expected both subscribers to receive the change, got %d and %d", first, second)
	}
}

func TestSyncBus_ContentOnlyChangeNotDelivered(t *testing.T) {
	bus := NewSyncBus(nil)
	bookID := uuid.New()

	count := 0
	defer bus.Subscribe(bookID, func(models.StructuralChange) { count++ })()

	// A title edit bumps the version but classifies as empty.
	bus.Publish(context.Background(), models.StructuralChange{BookID: bookID, Version: 2})

	if count != 0 {
		t.Errorf("Expected no delivery for a content-only change, got %d", count)
	}
}
