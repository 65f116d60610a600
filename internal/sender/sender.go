// Package sender implements the sender role (spec §4.4, §4.10): it
// walks a local source tree, transmits the file list, then answers
// each basis-signature request from the generator with a DeltaScript
// and a final whole-file checksum.
package sender

import (
	"fmt"

	"github.com/oferchen/rsync-sub002/internal/log"
	"github.com/oferchen/rsync-sub002/internal/rsyncopts"
	"github.com/oferchen/rsync-sub002/internal/rsyncstats"
	"github.com/oferchen/rsync-sub002/internal/rsyncwire"
)

// Transfer holds the state of one sender-role run.
type Transfer struct {
	Logger log.Logger
	Opts   *rsyncopts.Options
	Conn   *rsyncwire.Conn
	Seed   int32
}

// FilterList is the (currently uninterpreted) exclusion/include
// pattern list the generator side sends before the file list (spec
// §4.1): this module transfers the whole tree regardless of its
// contents, matching openrsync's behavior of always sending an empty
// list and gokr-rsync's historical lack of filter support.
type FilterList struct {
	Filters []string
}

// RecvFilterList reads the filter list sent by the peer: a sequence of
// length-prefixed byte strings terminated by a zero-length entry
// (rsync/exclude.c:send_filter_list, receive side).
func RecvFilterList(c *rsyncwire.Conn) (*FilterList, error) {
	var fl FilterList
	for {
		n, err := c.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("sender: reading filter list: %w", err)
		}
		if n == 0 {
			break
		}
		if n < 0 {
			return nil, fmt.Errorf("sender: invalid filter rule length %d", n)
		}
		b, err := c.ReadN(int(n))
		if err != nil {
			return nil, err
		}
		fl.Filters = append(fl.Filters, string(b))
	}
	return &fl, nil
}

func (st *Transfer) verbose() bool {
	return st.Opts != nil && st.Opts.Verbose()
}

// statsFromCounters builds the wire-facing report from the byte
// counters the caller's CountingReader/CountingWriter accumulated plus
// the total size of every regular file in list.
func statsFromCounters(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, totalSize int64) *rsyncstats.TransferStats {
	return &rsyncstats.TransferStats{
		Read:    crd.BytesRead,
		Written: cwr.BytesWritten,
		Size:    totalSize,
	}
}
