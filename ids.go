package stratadb

import "fmt"

// RegionID identifies a region: the high 32 bits are the table ID, the low 32
// bits are the region number within that table.
type RegionID uint64

// NewRegionID packs a table ID and region number into a RegionID.
func NewRegionID(tableID, regionNumber uint32) RegionID {
	return RegionID(uint64(tableID)<<32 | uint64(regionNumber))
}

// TableID returns the high 32 bits of the RegionID.
func (r RegionID) TableID() uint32 {
	return uint32(uint64(r) >> 32)
}

// RegionNumber returns the low 32 bits of the RegionID.
func (r RegionID) RegionNumber() uint32 {
	return uint32(uint64(r))
}

func (r RegionID) String() string {
	return fmt.Sprintf("%d(%d,%d)", uint64(r), r.TableID(), r.RegionNumber())
}

// Peer identifies a datanode. ID is stable across restarts; Addr may change.
type Peer struct {
	ID   uint64
	Addr string
}

func (p Peer) String() string {
	return fmt.Sprintf("peer(%d,%s)", p.ID, p.Addr)
}

// Equal reports whether two peers refer to the same datanode (by ID only —
// Addr may have changed since the route was last observed).
func (p Peer) Equal(o Peer) bool {
	return p.ID == o.ID
}
