package book

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// priceIndex is an ordered map from tick price to *PriceLevel, comparator
// chosen by side: descending for bids (best = highest price), ascending
// for asks (best = lowest price). Backed by gods' red-black tree.
type priceIndex struct {
	tree *redblacktree.Tree
}

func newBidIndex() *priceIndex {
	return &priceIndex{tree: redblacktree.NewWith(func(a, b interface{}) int {
		return utils.Int64Comparator(b, a)
	})}
}

func newAskIndex() *priceIndex {
	return &priceIndex{tree: redblacktree.NewWith(utils.Int64Comparator)}
}

func (idx *priceIndex) insert(price int64, level *PriceLevel) {
	idx.tree.Put(price, level)
}

func (idx *priceIndex) delete(price int64) {
	idx.tree.Remove(price)
}

func (idx *priceIndex) find(price int64) (*PriceLevel, bool) {
	v, found := idx.tree.Get(price)
	if !found {
		return nil, false
	}
	return v.(*PriceLevel), true
}

// best returns the level at the index's best price (min per its own
// comparator), or nil if empty.
func (idx *priceIndex) best() *PriceLevel {
	node := idx.tree.Left()
	if node == nil {
		return nil
	}
	return node.Value.(*PriceLevel)
}

func (idx *priceIndex) empty() bool {
	return idx.tree.Empty()
}

func (idx *priceIndex) size() int {
	return idx.tree.Size()
}

// levelsBestToWorst returns every resident level in best-to-worst order,
// used by snapshots (Side.Levels) and Side.IterateFromBest. The matchable
// iterator does not use it; it reads only the side's best level.
func (idx *priceIndex) levelsBestToWorst() []*PriceLevel {
	levels := make([]*PriceLevel, 0, idx.tree.Size())
	it := idx.tree.Iterator()
	it.Begin()
	for it.Next() {
		levels = append(levels, it.Value().(*PriceLevel))
	}
	return levels
}
