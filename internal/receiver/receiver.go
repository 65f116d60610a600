package receiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/rsync-sub002"
	"github.com/oferchen/rsync-sub002/internal/rsyncchecksum"
)

// RecvFiles is the pipelined receiver's network thread (spec §4.13):
// it decodes NDX + SumHead + token-stream traffic off the wire and
// hands each file's reconstructed byte stream to the disk-commit
// worker without ever blocking on disk I/O itself. rsync/receiver.c:
// recv_files.
func (rt *Transfer) RecvFiles(fileList []*File) error {
	phase := 0
	for {
		idx, err := rt.Conn.ReadInt32()
		if err != nil {
			return err
		}
		if idx == -1 {
			if phase == 0 {
				phase++
				if rt.Opts.Verbose { // TODO: DebugGTE(RECV, 1)
					rt.Logger.Printf("recvFiles phase=%d", phase)
				}
				continue
			}
			break
		}
		if rt.Opts.Verbose { // TODO: DebugGTE(RECV, 1)
			rt.Logger.Printf("receiving file idx=%d: %+v", idx, fileList[idx])
		}
		if err := rt.recvFile1(idx, fileList[idx], phase > 0); err != nil {
			return err
		}
		if err := rt.pipe.Err(); err != nil {
			return err
		}
	}
	if rt.Opts.Verbose { // TODO: DebugGTE(RECV, 1)
		rt.Logger.Printf("recvFiles finished")
	}
	return nil
}

// recvFile1 reads one file's SumHead and opens its local basis (if
// any), submits a job to the disk-commit worker, and streams the
// token-decoded byte chunks into it. phase2 marks a redo pass: a
// checksum mismatch there is fatal rather than requeued (spec §4.11
// step 7).
func (rt *Transfer) recvFile1(ndx int32, f *File, phase2 bool) error {
	if rt.Opts.DryRun {
		if !rt.Opts.Server {
			fmt.Fprintln(rt.Env.Stdout, f.Name)
		}
		return nil
	}

	var sh rsync.SumHead
	if err := sh.ReadFrom(rt.Conn); err != nil {
		return err
	}

	localFile, err := rt.openLocalFile(f)
	if err != nil && !os.IsNotExist(err) {
		rt.Logger.Printf("opening local file failed, continuing: %v", err)
	}
	if localFile != nil {
		defer localFile.Close()
	}

	job := &fileJob{
		ndx:    ndx,
		f:      f,
		phase2: phase2,
		chunks: make(chan chunk, chunkChanCap),
	}
	rt.pipe.submit(job)

	// Deliberately does not wait for the commit worker to finish with
	// job: doing so would serialize network reads behind disk commits,
	// the exact coupling the pipeline exists to remove (spec §4.13). A
	// fatal commit error surfaces through rt.pipe.Err(), which RecvFiles
	// polls after each file.
	return rt.streamTokens(job, sh, localFile)
}

func (rt *Transfer) openLocalFile(f *File) (*os.File, error) {
	in, err := rt.destRoot().Open(f.Name)
	if err != nil {
		return nil, err
	}

	st, err := in.Stat()
	if err != nil {
		return nil, err
	}

	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filepath.Join(rt.Dest, f.Name))
	}

	if !st.Mode().IsRegular() {
		return nil, nil
	}

	if !rt.Opts.PreservePerms {
		// If the file exists already and we are not preserving permissions,
		// then act as though the remote sent us the existing permissions:
		f.Mode = uint32(st.Mode().Perm())
	}

	return in, nil
}

// streamTokens decodes the sender's per-file token stream (spec §4.5)
// into ordered chunks for the commit worker: a positive token is a
// literal run of that many bytes, a negative token copies the
// corresponding basis block, and zero is the end marker followed by
// the whole-file checksum. The network thread never writes to disk
// itself; it only resolves bytes and forwards them. rsync/receiver.c:
// receive_data, split across the network/disk thread boundary.
func (rt *Transfer) streamTokens(job *fileJob, sh rsync.SumHead, localFile *os.File) error {
	defer close(job.chunks)

	digestLen := rsyncchecksum.MD4.Size()

	for {
		token, err := rt.Conn.ReadInt32()
		if err != nil {
			return err
		}

		if token == 0 {
			remoteSum, err := rt.Conn.ReadN(digestLen)
			if err != nil {
				return err
			}
			job.chunks <- chunk{final: true, remoteSum: remoteSum}
			return nil
		}

		if token > 0 {
			buf := rt.pipe.getBuf(int(token))
			if _, err := io.ReadFull(rt.Conn.Reader, buf); err != nil {
				return err
			}
			job.chunks <- chunk{data: buf}
			continue
		}

		if localFile == nil {
			return fmt.Errorf("BUG: local file %s not open for copying chunk", job.f.Name)
		}
		blockIdx := -(token + 1)
		dataLen := sh.BlockLength
		if blockIdx == sh.ChecksumCount-1 && sh.RemainderLength != 0 {
			dataLen = sh.RemainderLength
		}
		buf := rt.pipe.getBuf(int(dataLen))
		offset := int64(blockIdx) * int64(sh.BlockLength)
		if _, err := localFile.ReadAt(buf, offset); err != nil {
			return err
		}
		job.chunks <- chunk{data: buf}
	}
}
