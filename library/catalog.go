package library

import (
	"context"
	"fmt"
)

// AddCatalogEntry registers a catalog entry. Adding an existing EAN again is
// a no-op that returns the stored entry.
func (lm *LibraryManager) AddCatalogEntry(ctx context.Context, ean string, mediaType MediaType) (*CatalogEntry, error) {
	if err := ValidateEAN(ean); err != nil {
		return nil, err
	}
	if _, err := ParseMediaType(string(mediaType)); err != nil {
		return nil, err
	}

	var e *CatalogEntry
	err := lm.db.withTx(ctx, func(q *queries) error {
		if err := q.insertEntry(ctx, &CatalogEntry{EAN: ean, MediaType: mediaType}); err != nil {
			return err
		}
		var err error
		e, err = q.entry(ctx, ean)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add catalog entry: %w", err)
	}
	return e, nil
}

// AddItem creates a new copy of an entry with the next free barcode.
func (lm *LibraryManager) AddItem(ctx context.Context, ean string, today Date) (*Item, error) {
	var it *Item
	err := lm.db.withTx(ctx, func(q *queries) error {
		if _, err := q.entry(ctx, ean); err != nil {
			return err
		}
		highest, err := q.highestBarcode(ctx)
		if err != nil {
			return err
		}
		it = &Item{
			Barcode: fmt.Sprintf("%0*d", barcodeWidth, highest+1),
			EAN:     ean,
			AddedOn: today,
		}
		return q.insertItem(ctx, it)
	})
	if err != nil {
		return nil, err
	}
	lm.logger.Info("item added", "barcode", it.Barcode, "ean", ean)
	return it, nil
}

// RemoveItem withdraws a copy from circulation. Copies on loan cannot be
// removed; closed loans keep the barcode.
func (lm *LibraryManager) RemoveItem(ctx context.Context, barcode string) error {
	release := lm.locks.acquire(itemKey(barcode))
	defer release()

	err := lm.db.withTx(ctx, func(q *queries) error {
		if _, err := q.item(ctx, barcode); err != nil {
			return err
		}
		open, err := q.openLoanForItem(ctx, barcode)
		if err != nil {
			return err
		}
		if open != nil {
			return fmt.Errorf("%w: loan %d of card %s", ErrItemOnLoan, open.ID, open.CardNumber)
		}
		return q.deleteItem(ctx, barcode)
	})
	if err != nil {
		return err
	}
	lm.logger.Info("item removed", "barcode", barcode)
	return nil
}
