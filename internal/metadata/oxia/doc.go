// Package oxia implements metadata.Store on an Oxia cluster.
//
// Usage:
//
//	store, err := oxia.New(oxia.Config{
//	    ServiceAddress: "localhost:6648",
//	    Namespace:      "default",
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Key encoding:
//
// Oxia orders keys hierarchically on '/', so a range scan over a prefix
// only sees direct children. Topic and offset listings need every key under
// a prefix, so keys are stored with '/' replaced by 0x01 and decoded on the
// way out. Listings are re-sorted by decoded key.
//
// Transactions:
//
// Txn applies its writes one by one, each conditional on the version the
// key had when the write was prepared. On a conflict the writes already
// applied are reverted and ErrVersionMismatch is returned. Readers may
// observe a partially applied transaction until it completes or reverts.
package oxia
