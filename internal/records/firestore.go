package records

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps records as documents of one Firestore collection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore wraps a shared Firestore client.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}
}

// Update implements Store. Only the three verdict fields are written; the
// rest of the document is left untouched.
func (s *FirestoreStore) Update(ctx context.Context, recordID string, u Update) error {
	if err := ValidateID(recordID); err != nil {
		return fmt.Errorf("FirestoreStore.Update: %w", err)
	}

	_, err := s.client.Collection(s.collection).Doc(recordID).Update(ctx, []firestore.Update{
		{Path: FieldStatus, Value: string(u.Status)},
		{Path: FieldLastReadAmount, Value: u.LastReadAmount.InexactFloat64()},
		{Path: FieldOCRExcerpt, Value: u.OCRExcerpt},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("FirestoreStore.Update %s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("FirestoreStore.Update %s: %w", recordID, err)
	}
	return nil
}

// Delete implements Store.
func (s *FirestoreStore) Delete(ctx context.Context, recordID string) error {
	if err := ValidateID(recordID); err != nil {
		return fmt.Errorf("FirestoreStore.Delete: %w", err)
	}

	if _, err := s.client.Collection(s.collection).Doc(recordID).Delete(ctx); err != nil {
		return fmt.Errorf("FirestoreStore.Delete %s: %w", recordID, err)
	}
	return nil
}

var _ Store = (*FirestoreStore)(nil)
