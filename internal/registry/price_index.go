package registry

import "scalp_go/pkg/quant"

// priceIndex maps a limit price to the set of local order ids resting there.
// It is a private detail of the Registry: membership changes only inside the
// same transition that changes an order's alive-ness, so the index can never
// diverge from the records.
type priceIndex struct {
	buckets map[quant.Price4]map[string]struct{}
}

func newPriceIndex() *priceIndex {
	return &priceIndex{buckets: make(map[quant.Price4]map[string]struct{})}
}

func (idx *priceIndex) insert(price quant.Price4, localID string) {
	bucket, ok := idx.buckets[price]
	if !ok {
		bucket = make(map[string]struct{})
		idx.buckets[price] = bucket
	}
	bucket[localID] = struct{}{}
}

// remove deletes the id from the price bucket, dropping the bucket when it
// empties.
func (idx *priceIndex) remove(price quant.Price4, localID string) {
	bucket, ok := idx.buckets[price]
	if !ok {
		return
	}
	delete(bucket, localID)
	if len(bucket) == 0 {
		delete(idx.buckets, price)
	}
}

func (idx *priceIndex) at(price quant.Price4) map[string]struct{} {
	return idx.buckets[price]
}
