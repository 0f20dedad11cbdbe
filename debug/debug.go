package debug

import (
	"fmt"
	"io"

	"github.com/jnwhiteh/sectorfs/alloctbl"
	"github.com/jnwhiteh/sectorfs/directory"
	"github.com/jnwhiteh/sectorfs/inode"
)

// PrintInode writes the header fields, index chain and extents of rip.
func PrintInode(w io.Writer, rip *inode.Inode) {
	fmt.Fprintf(w, "%8s %-18s %8s %6s %6s %s\n", "INODE #", "TYPE", "SIZE", "LINKS", "USES", "INDEX")
	fmt.Fprintf(w, "%8d %-18s %8d %6d %6d %v\n", rip.Addr, rip.Type, rip.Size, rip.Links, rip.Uses, rip.IndexSectors())
	printSectors(w, "extents", rip.Extents)
}

// PrintDirectory writes the entry table of d in name order.
func PrintDirectory(w io.Writer, d *directory.Directory) {
	fmt.Fprintf(w, "directory %d, parent %d\n", d.Addr(), d.Parent())
	for i, name := range d.Names() {
		addr, _ := d.Lookup(name)
		fmt.Fprintf(w, "Entry %6d: %-32q at inode %8d\n", i, name, addr)
	}
}

// PrintBitmap summarises the allocation table and lists the free sectors
// in the order they will be handed out.
func PrintBitmap(w io.Writer, alloc *alloctbl.AllocTbl) {
	fmt.Fprintf(w, "bitmap sectors %v, %d free (%d bytes)\n",
		alloc.MapSectors(), alloc.FreeCount(), alloc.FreeBytes())
	printSectors(w, "free", alloc.FreeSet())
}

func printSectors(w io.Writer, label string, addrs []uint32) {
	const perLine = 8
	fmt.Fprintf(w, "%s (%d):\n", label, len(addrs))
	for i := 0; i < len(addrs); i += perLine {
		end := i + perLine
		if end > len(addrs) {
			end = len(addrs)
		}
		for _, addr := range addrs[i:end] {
			fmt.Fprintf(w, " %8d", addr)
		}
		fmt.Fprintln(w)
	}
}
