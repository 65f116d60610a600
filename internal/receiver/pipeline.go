package receiver

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/oferchen/rsync-sub002/internal/rsyncchecksum"
)

// Tunables for the pipelined receiver (spec §4.13). pipelineWindow
// bounds the number of basis-signature requests the generator may have
// outstanding before the network thread's backpressure stalls it;
// chunkChanCap bounds how far the network thread can run ahead of the
// disk-commit worker for a single file.
const (
	pipelineWindow = 8
	chunkChanCap   = 4
	bufPoolCap     = 32
)

// chunk is one unit of reconstructed file data handed from the network
// reader to the disk-commit worker, in source order. A chunk with
// final set carries no data; remoteSum is the whole-file checksum the
// sender appended after its last token.
type chunk struct {
	data      []byte
	final     bool
	remoteSum []byte
}

// fileJob describes one in-flight file transfer handed to the
// disk-commit worker: just its chunk stream. The network thread
// (streamTokens) never waits for the result of a job it submits —
// doing so would serialize network reads behind disk commits and
// defeat the overlap the pipeline exists to provide. Instead, a fatal
// commit error is surfaced through the pipeline's abort channel, which
// RecvFiles polls between files.
type fileJob struct {
	ndx    int32
	f      *File
	phase2 bool
	chunks chan chunk
}

// pipeline overlaps network reads and disk commits (spec §4.13): the
// network thread (RecvFiles) decodes the token stream and the
// disk-commit worker (run, the pipeline's single long-lived goroutine)
// writes, verifies, and renames each file independently, connected by
// bounded channels that provide backpressure in both directions. Jobs
// are committed strictly in submission order, but a job's chunks can
// still be streamed in by the network thread while the worker is busy
// committing an earlier file, since each file gets its own buffered
// chunk channel.
type pipeline struct {
	rt *Transfer

	window chan struct{} // outstanding generator requests, capacity pipelineWindow
	jobs   chan *fileJob
	bufs   chan []byte // buffer-reuse return channel

	inflight sync.WaitGroup

	mu   sync.Mutex
	redo []int32

	errOnce  sync.Once
	fatalErr error
	abort    chan struct{}
}

func newPipeline(rt *Transfer) *pipeline {
	p := &pipeline{
		rt:     rt,
		window: make(chan struct{}, pipelineWindow),
		jobs:   make(chan *fileJob, pipelineWindow),
		bufs:   make(chan []byte, bufPoolCap),
		abort:  make(chan struct{}),
	}
	go p.run()
	return p
}

// setFatal records the first fatal disk-commit error and signals abort
// to anything selecting on it. Only the first caller's error sticks.
func (p *pipeline) setFatal(err error) {
	p.errOnce.Do(func() {
		p.fatalErr = err
		close(p.abort)
	})
}

// Err returns the first fatal disk-commit error, if any has occurred
// yet. RecvFiles polls this between files so a commit failure stops
// the network thread instead of running to the end of the file list.
func (p *pipeline) Err() error {
	select {
	case <-p.abort:
		return p.fatalErr
	default:
		return nil
	}
}

// acquireWindow is called by the generator before it sends a
// basis-signature request; it blocks once pipelineWindow requests are
// already outstanding, throttling the request-side window.
func (p *pipeline) acquireWindow() {
	p.window <- struct{}{}
	p.inflight.Add(1)
}

// releaseWindow frees a request-window slot. The commit worker calls
// this once a file is fully resolved (success, recorded error, or
// scheduled for redo); generateRegularFile calls it directly on any
// error path that aborts before a job is ever submitted.
func (p *pipeline) releaseWindow() {
	<-p.window
	p.inflight.Done()
}

// awaitDrain blocks until every outstanding request has been resolved,
// which is the synchronization point between phase 1's requests and
// the redo list becoming final.
func (p *pipeline) awaitDrain() { p.inflight.Wait() }

func (p *pipeline) addRedo(ndx int32) {
	p.mu.Lock()
	p.redo = append(p.redo, ndx)
	p.mu.Unlock()
}

func (p *pipeline) takeRedo() []int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.redo
	p.redo = nil
	return r
}

// getBuf returns a reusable chunk buffer of length n, preferring the
// free pool over a fresh allocation.
func (p *pipeline) getBuf(n int) []byte {
	select {
	case b := <-p.bufs:
		if cap(b) >= n {
			return b[:n]
		}
	default:
	}
	return make([]byte, n)
}

// putBuf returns an emptied chunk buffer to the free pool.
func (p *pipeline) putBuf(b []byte) {
	select {
	case p.bufs <- b[:0]:
	default:
	}
}

func (p *pipeline) submit(job *fileJob) { p.jobs <- job }

// close signals the worker to exit once it drains the remaining jobs.
func (p *pipeline) close() { close(p.jobs) }

// run is the disk-commit worker (spec §4.13): one long-lived goroutine
// that never touches the socket, draining file jobs strictly in order.
// commitFile's return value is reserved for errors that must abort the
// whole transfer (a phase-2 whole-file checksum mismatch); every other
// failure it handles itself via rt.addMetadataError, matching how
// GenerateFiles treats non-fatal per-file errors on the generator side.
func (p *pipeline) run() {
	for job := range p.jobs {
		if err := p.rt.commitFile(job); err != nil {
			p.setFatal(err)
		}
		p.releaseWindow()
	}
}

// commitFile drains one file's chunk stream, writes it (sparse-aware),
// verifies the whole-file checksum, and on success renames the temp
// file into place and applies metadata. A phase-1 checksum mismatch is
// non-fatal: the file is queued for redo instead. Everything else that
// can go wrong here (open, write, rename, metadata) is a per-file
// error recorded against the transfer's stats rather than aborting the
// whole run; only a phase-2 mismatch ("file corruption") is returned
// as fatal. rsync/receiver.c:receive_data plus the commit half of
// generate_files' redo handling.
func (rt *Transfer) commitFile(job *fileJob) error {
	f := job.f
	local := rt.destRoot().path(f.Name)

	out, err := newPendingFile(local)
	if err != nil {
		drainChunks(job.chunks)
		rt.addMetadataError(f.Name, err)
		return nil
	}
	defer out.Cleanup()

	h := rsyncchecksum.NewFileChecksumHasher(rsyncchecksum.MD4, rt.Seed)

	var dest io.Writer = out
	var sw *sparseWriter
	if rt.Opts.Sparse {
		sw = newSparseWriter(out)
		dest = sw
	}
	wr := io.MultiWriter(dest, h)

	var remoteSum []byte
	for c := range job.chunks {
		if c.final {
			remoteSum = c.remoteSum
			continue
		}
		if _, err := wr.Write(c.data); err != nil {
			drainChunks(job.chunks)
			rt.addMetadataError(f.Name, err)
			return nil
		}
		rt.pipe.putBuf(c.data)
	}

	if sw != nil {
		if err := sw.Close(); err != nil {
			rt.addMetadataError(f.Name, err)
			return nil
		}
	}

	localSum := h.Sum(nil)
	if !bytes.Equal(localSum, remoteSum) {
		if !job.phase2 {
			rt.pipe.addRedo(job.ndx)
			rt.Logger.Printf("checksum mismatch in %s, scheduling redo", f.Name)
			return nil
		}
		return fmt.Errorf("file corruption in %s", f.Name)
	}
	rt.Logger.Printf("checksum %x matches!", localSum)

	if err := out.CloseAtomicallyReplace(); err != nil {
		rt.addMetadataError(f.Name, err)
		return nil
	}

	if err := rt.setPerms(f); err != nil {
		rt.addMetadataError(f.Name, err)
	}
	return nil
}

// drainChunks unblocks the network thread after the commit worker
// abandons a file job mid-stream, so streamTokens's sends don't
// deadlock against a reader that stopped listening.
func drainChunks(chunks chan chunk) {
	for range chunks {
	}
}
